package item

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Chunk is an ordered batch of records committed as one transactional unit.
type Chunk[T any] struct {
	// Sequence numbers chunks of one step from 1.
	Sequence int
	Items    []T
}

// Len returns the number of records in the chunk.
func (c Chunk[T]) Len() int { return len(c.Items) }

// Assembler pulls records from a reader and groups them into chunks of at most size records.
// Records keep the order the reader returned them in. An Assembler is single-use;
// a new step attempt needs a new Assembler over a freshly opened reader.
type Assembler[T any] struct {
	reader port.ItemReader[T]
	size   int
	seq    int
	done   bool
}

// NewAssembler creates a new Assembler. size must be at least 1.
func NewAssembler[T any](reader port.ItemReader[T], size int) (*Assembler[T], error) {
	if reader == nil {
		return nil, exception.NewConfigurationError("assembler", "assembler requires a reader", nil)
	}
	if size < 1 {
		return nil, exception.NewConfigurationError("assembler", fmt.Sprintf("chunk size must be at least 1, got %d", size), nil)
	}
	return &Assembler[T]{reader: reader, size: size}, nil
}

// Next returns the next chunk. The last chunk may be shorter than size.
// Once the reader is exhausted Next returns port.ErrNoMoreItems on every call.
// A read error is returned as is and the partially filled chunk is dropped.
func (a *Assembler[T]) Next(ctx context.Context) (Chunk[T], error) {
	if a.done {
		return Chunk[T]{}, port.ErrNoMoreItems
	}
	items := make([]T, 0, a.size)
	for len(items) < a.size {
		item, err := a.reader.Read(ctx)
		if err != nil {
			if port.IsEndOfSource(err) {
				a.done = true
				break
			}
			return Chunk[T]{}, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return Chunk[T]{}, port.ErrNoMoreItems
	}
	a.seq++
	return Chunk[T]{Sequence: a.seq, Items: items}, nil
}
