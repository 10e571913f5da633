/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package eventlog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// WriteRecord writes one varint-size-prefixed JSON record to the stream.
func WriteRecord(dest io.Writer, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WithMessage(err, "could not marshal record")
	}

	lenBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(lenBuf, int64(len(data)))
	if _, err = dest.Write(lenBuf[:n]); err != nil {
		return errors.WithMessage(err, "could not write length prefix")
	}

	if _, err = dest.Write(data); err != nil {
		return errors.WithMessage(err, "could not write record")
	}

	return nil
}

// Reader decodes a trace stream written by an Interceptor.
type Reader struct {
	buffer   *bytes.Buffer
	gzReader *gzip.Reader
	source   *bufio.Reader
}

// NewReader wraps a trace stream.
func NewReader(source io.Reader) (*Reader, error) {
	gzReader, err := gzip.NewReader(source)
	if err != nil {
		return nil, errors.WithMessage(err, "could not read source as a gzip stream")
	}

	return &Reader{
		buffer:   &bytes.Buffer{},
		gzReader: gzReader,
		source:   bufio.NewReader(gzReader),
	}, nil
}

// ReadRecord returns the next record, or io.EOF at end of stream.
func (r *Reader) ReadRecord() (*Record, error) {
	l, err := binary.ReadVarint(r.source)
	if err != nil {
		if err == io.EOF {
			r.gzReader.Close()
			return nil, io.EOF
		}
		return nil, errors.WithMessage(err, "could not read size prefix")
	}

	r.buffer.Reset()
	r.buffer.Grow(int(l))
	if _, err := io.CopyN(r.buffer, r.source, l); err != nil {
		return nil, errors.WithMessage(err, "could not read record")
	}

	record := &Record{}
	if err := json.Unmarshal(r.buffer.Bytes(), record); err != nil {
		return nil, errors.WithMessage(err, "could not unmarshal record")
	}

	return record, nil
}
