/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// benchcat is a tool for reviewing recorded bench traces. It understands
// the stream format written by pkg/eventlog and the WAL format written by
// pkg/tracelog, and can filter records by kind, task, driver, channel,
// and tick range, or summarize a whole run.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/verikit-labs/verikit/pkg/eventlog"
	"github.com/verikit-labs/verikit/pkg/tracelog"
)

var allKinds = []string{
	"header",
	"tick",
	"task-resume",
	"task-suspend",
	"task-done",
	"bus",
	"match",
	"finding",
}

type arguments struct {
	input    string
	wal      bool
	kinds    []string
	task     string
	driver   string
	channel  string
	fromTick uint64
	toTick   uint64
	summary  bool
}

func parseArgs(args []string) (*arguments, error) {
	app := kingpin.New("benchcat", "Utility for parsing and inspecting recorded bench traces.")
	input := app.Arg("input", "The trace file to read (stream format, or WAL directory with --wal).").Required().String()
	wal := app.Flag("wal", "Read the input as a tracelog WAL directory instead of a gzip stream.").Bool()
	kinds := app.Flag("kind", "Record kinds to display (repeatable), defaults to all.").Enums(allKinds...)
	task := app.Flag("task", "Only show records for this task.").String()
	driver := app.Flag("driver", "Only show records for this driver.").String()
	channel := app.Flag("channel", "Only show records for this scoreboard channel.").String()
	fromTick := app.Flag("from-tick", "Only show records at or after this tick.").Uint64()
	toTick := app.Flag("to-tick", "Only show records at or before this tick (0 = unbounded).").Uint64()
	summary := app.Flag("summary", "Print per-kind counts and findings instead of individual records.").Bool()

	_, err := app.Parse(args)
	if err != nil {
		return nil, errors.WithMessage(err, "error parsing arguments")
	}

	return &arguments{
		input:    *input,
		wal:      *wal,
		kinds:    *kinds,
		task:     *task,
		driver:   *driver,
		channel:  *channel,
		fromTick: *fromTick,
		toTick:   *toTick,
		summary:  *summary,
	}, nil
}

func (a *arguments) matches(record *eventlog.Record) bool {
	if len(a.kinds) > 0 {
		found := false
		for _, k := range a.kinds {
			if string(record.Kind) == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if a.task != "" && record.Task != a.task {
		return false
	}
	if a.driver != "" && record.Driver != a.driver {
		return false
	}
	if a.channel != "" && record.Channel != a.channel {
		return false
	}
	if record.Tick < a.fromTick {
		return false
	}
	if a.toTick != 0 && record.Tick > a.toTick {
		return false
	}
	return true
}

func (a *arguments) execute(output io.Writer) error {
	var iterate func(fn func(*eventlog.Record) error) error

	if a.wal {
		log, err := tracelog.Open(a.input)
		if err != nil {
			return err
		}
		defer log.Close()
		iterate = func(fn func(*eventlog.Record) error) error {
			return log.Iterate(func(_ uint64, record *eventlog.Record) error {
				return fn(record)
			})
		}
	} else {
		file, err := os.Open(a.input)
		if err != nil {
			return errors.WithMessage(err, "could not open input file")
		}
		defer file.Close()
		reader, err := eventlog.NewReader(file)
		if err != nil {
			return err
		}
		iterate = func(fn func(*eventlog.Record) error) error {
			for {
				record, err := reader.ReadRecord()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := fn(record); err != nil {
					return err
				}
			}
		}
	}

	if a.summary {
		return a.summarize(iterate, output)
	}

	return iterate(func(record *eventlog.Record) error {
		if a.matches(record) {
			fmt.Fprintln(output, record)
		}
		return nil
	})
}

func (a *arguments) summarize(iterate func(fn func(*eventlog.Record) error) error, output io.Writer) error {
	counts := map[eventlog.Kind]int{}
	var findings []*eventlog.Record
	var header *eventlog.Record
	var lastTick uint64

	err := iterate(func(record *eventlog.Record) error {
		counts[record.Kind]++
		if record.Tick > lastTick {
			lastTick = record.Tick
		}
		switch record.Kind {
		case eventlog.KindHeader:
			header = record
		case eventlog.KindFinding:
			findings = append(findings, record)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if header != nil {
		fmt.Fprintf(output, "run %s seed=%d\n", header.RunID, header.Seed)
	}
	fmt.Fprintf(output, "last tick %d\n", lastTick)
	for _, kind := range allKinds {
		if counts[eventlog.Kind(kind)] > 0 {
			fmt.Fprintf(output, "%-12s %d\n", kind, counts[eventlog.Kind(kind)])
		}
	}
	if len(findings) == 0 {
		fmt.Fprintln(output, "no findings")
		return nil
	}
	fmt.Fprintf(output, "%d finding(s):\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(output, "  %s\n", f)
	}
	return nil
}

func main() {
	kingpin.Version("0.1.0")
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("%s, try --help", err)
	}

	if err := args.execute(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
