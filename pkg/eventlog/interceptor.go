/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package eventlog

import (
	"compress/gzip"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// InterceptorOpt configures an Interceptor.
type InterceptorOpt interface{}

type timeSourceOpt func() int64

// TimeSourceOpt overrides the default time source for an interceptor.
// Useful for changing timestamp granularity or synchronizing logs against
// an external sync point. The default stamps milliseconds since the
// interceptor was created.
func TimeSourceOpt(source func() int64) InterceptorOpt {
	return timeSourceOpt(source)
}

type compressionLevelOpt int

// DefaultCompressionLevel is used for event capture when not overridden.
const DefaultCompressionLevel = gzip.DefaultCompression

// CompressionLevelOpt takes any of the compression levels supported by
// the standard gzip package.
func CompressionLevelOpt(level int) InterceptorOpt {
	return compressionLevelOpt(level)
}

// DefaultBufferSize is the number of unwritten records which may be held
// in queue before intercepting blocks.
const DefaultBufferSize = 5000

type bufferSizeOpt int

// BufferSizeOpt overrides the interceptor's record buffer size. Once the
// buffer overflows, the engine blocks on intercept until there is room.
func BufferSizeOpt(size int) InterceptorOpt {
	return bufferSizeOpt(size)
}

// Interceptor receives trace records, serializes them, compresses them,
// and writes them to a stream on a background goroutine. It implements
// Sink.
type Interceptor struct {
	runID            uuid.UUID
	seed             int64
	timeSource       func() int64
	compressionLevel int
	recordC          chan *Record
	doneC            chan struct{}
	exitC            chan struct{}

	exitErr      error
	exitErrMutex sync.Mutex
}

// NewInterceptor starts an interceptor writing to dest. The first record
// written is a header carrying the run's uuid and seed.
func NewInterceptor(runID uuid.UUID, seed int64, dest io.Writer, opts ...InterceptorOpt) *Interceptor {
	startTime := time.Now()

	i := &Interceptor{
		runID: runID,
		seed:  seed,
		timeSource: func() int64 {
			return time.Since(startTime).Milliseconds()
		},
		compressionLevel: DefaultCompressionLevel,
		recordC:          make(chan *Record, DefaultBufferSize),
		doneC:            make(chan struct{}),
		exitC:            make(chan struct{}),
	}

	for _, opt := range opts {
		switch v := opt.(type) {
		case timeSourceOpt:
			i.timeSource = v
		case compressionLevelOpt:
			i.compressionLevel = int(v)
		case bufferSizeOpt:
			i.recordC = make(chan *Record, v)
		}
	}

	go i.run(dest)

	return i
}

// Intercept enqueues a record into the write buffer. If there is no room
// it blocks. If draining to the output stream has ended (successfully or
// otherwise), Intercept returns an error.
func (i *Interceptor) Intercept(record *Record) error {
	record.Time = i.timeSource()
	select {
	case <-i.exitC:
		// Draining already ended; never buffer into a dead channel.
	default:
		select {
		case i.recordC <- record:
			return nil
		case <-i.exitC:
		}
	}
	i.exitErrMutex.Lock()
	defer i.exitErrMutex.Unlock()
	return i.exitErr
}

// Stop flushes buffered records and releases the interceptor's resources.
// It should only be invoked after the bench has completely stopped.
func (i *Interceptor) Stop() error {
	close(i.doneC)
	<-i.exitC
	i.exitErrMutex.Lock()
	defer i.exitErrMutex.Unlock()
	if errors.Is(i.exitErr, errStopped) {
		return nil
	}
	return i.exitErr
}

var errStopped = errors.New("interceptor stopped at caller request")

func (i *Interceptor) run(dest io.Writer) {
	var exitErr error
	defer func() {
		i.exitErrMutex.Lock()
		i.exitErr = exitErr
		i.exitErrMutex.Unlock()
		close(i.exitC)
	}()

	gzWriter, err := gzip.NewWriterLevel(dest, i.compressionLevel)
	if err != nil {
		exitErr = errors.WithMessage(err, "could not create gzip writer")
		return
	}
	defer gzWriter.Close()

	if err := WriteRecord(gzWriter, &Record{
		Kind:  KindHeader,
		RunID: i.runID.String(),
		Seed:  i.seed,
		Time:  i.timeSource(),
	}); err != nil {
		exitErr = errors.WithMessage(err, "error writing trace header")
		return
	}

	for {
		select {
		case <-i.doneC:
			for {
				select {
				case record := <-i.recordC:
					if err := WriteRecord(gzWriter, record); err != nil {
						exitErr = errors.WithMessage(err, "error serializing to stream")
						return
					}
				default:
					exitErr = errStopped
					return
				}
			}
		case record := <-i.recordC:
			if err := WriteRecord(gzWriter, record); err != nil {
				exitErr = errors.WithMessage(err, "error serializing to stream")
				return
			}
		}
	}
}
