package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestConsumerCommitsHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Key: []byte("a"), Value: []byte(`{"id":"a"}`)},
		{Offset: 2, Key: []byte("b"), Value: []byte(`not json`)},
		{Offset: 3, Key: []byte("c"), Value: []byte(`{"id":"c"}`)},
	}}
	var seen []string
	c := NewConsumerWithReader(r, "extraction-jobs", func(ctx context.Context, key, value []byte) error {
		job, err := DecodeJSON[struct {
			ID string `json:"id"`
		}](value)
		if err != nil {
			return err
		}
		seen = append(seen, job.ID)
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"a", "c"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed, "failed messages are not committed")
	assert.True(t, r.closed)
}

func TestConsumerStopsOnCancel(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumerWithReader(r, "t", func(context.Context, []byte, []byte) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.NoError(t, c.Start(ctx))
	assert.True(t, r.closed)
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "extraction-results")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "job-1", Value: map[string]int{"bits": 8}}))
	require.NoError(t, p.PublishBatch(context.Background(), []Event{
		{Key: "job-2", Value: "x"},
		{Key: "job-3", Value: nil},
	}))
	require.Len(t, w.msgs, 3)
	assert.Equal(t, "job-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"bits":8}`, string(w.msgs[0].Value))
	assert.Equal(t, `"x"`, string(w.msgs[1].Value))
	assert.Equal(t, "null", string(w.msgs[2].Value))

	w.err = errors.New("broker down")
	err := p.Publish(context.Background(), Event{Key: "job-4", Value: 1})
	assert.ErrorIs(t, err, w.err)

	err = p.Publish(context.Background(), Event{Key: "bad", Value: make(chan int)})
	assert.ErrorContains(t, err, "marshaling event value")
}
