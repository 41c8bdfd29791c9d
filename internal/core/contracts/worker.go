package contracts

import "context"

type AsyncWorker interface {
	// Run starts the consumer loop for one conversation stream.
	Run(ctx context.Context, convID string) error
	// ProcessMessage persists a pending message, fans out the resulting
	// events, then acknowledges and deletes the stream entry.
	ProcessMessage(ctx context.Context, msgID string, rawData []byte) error
}

// TxManager runs fn inside a database transaction carried through the
// context.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
