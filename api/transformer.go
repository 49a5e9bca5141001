package api

// OperationType identifies the kind of text edit.
type OperationType string

const (
	OperationInsert OperationType = "insert"
	OperationDelete OperationType = "delete"
)

// Operation is a single text edit against the shared document.
// BaseVersion is the length of the operation log the author had observed
// when the edit was generated. Version and UserID are assigned by the
// session when the operation is applied: an applied operation's Version
// equals its 1-based position in the log.
type Operation struct {
	Type        OperationType `json:"type"`
	Index       int           `json:"index"`
	Text        string        `json:"text,omitempty"`
	Length      int           `json:"length,omitempty"`
	BaseVersion int           `json:"baseVersion"`
	Version     int           `json:"version,omitempty"`
	UserID      string        `json:"userId,omitempty"`
}

// OperationTransformer rewrites an incoming edit against operations that
// were applied after the edit's base version, producing an equivalent edit
// for the current document state.
//
// This is positional transformation, not intention-preserving merge: a
// historical delete that straddles the incoming index clamps the index to
// the start of the delete. Adjacent concurrent deletes can therefore
// reorder intent. Conflict reporting downstream depends on this exact
// clamp behavior, so it must not change.
type OperationTransformer struct{}

// NewOperationTransformer creates a transformer.
func NewOperationTransformer() *OperationTransformer {
	return &OperationTransformer{}
}

// Transform folds history[baseVersion:] into incoming and returns the
// shifted operation. The incoming operation is not mutated.
func (t *OperationTransformer) Transform(incoming Operation, history []Operation, baseVersion int) (Operation, error) {
	if incoming.Index < 0 {
		return Operation{}, ErrInvalidOperation
	}

	if baseVersion < 0 {
		baseVersion = 0
	}
	if baseVersion > len(history) {
		baseVersion = len(history)
	}

	transformed := incoming
	for _, applied := range history[baseVersion:] {
		switch applied.Type {
		case OperationInsert:
			t.shiftForInsert(applied, &transformed)
		case OperationDelete:
			t.shiftForDelete(applied, &transformed)
		}
	}

	return transformed, nil
}

func (t *OperationTransformer) shiftForInsert(applied Operation, incoming *Operation) {
	if applied.Index < incoming.Index {
		incoming.Index += len(applied.Text)
	}
}

func (t *OperationTransformer) shiftForDelete(applied Operation, incoming *Operation) {
	start := applied.Index
	end := applied.Index + applied.Length

	// Delete entirely before the incoming index shifts it left.
	if end <= incoming.Index {
		incoming.Index -= applied.Length
		return
	}

	// The position the edit targeted was itself deleted; anchor the edit
	// to the start of the deletion.
	if start < incoming.Index && incoming.Index < end {
		incoming.Index = start
	}
}
