// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package teereader

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

// DefaultTailLines is the number of lines kept when New is given zero.
const DefaultTailLines = 20

// LineTee splits a stream into lines, hands each line to a callback as soon as
// it is complete, and keeps the last few lines for error reporting.
// It is safe for concurrent use; one LineTee can collect stdout and stderr.
type LineTee struct {
	mu       sync.RWMutex
	tail     []string
	maxTail  int
	lastLine string
	lines    int
}

// New creates a LineTee that keeps at most maxTail lines.
func New(maxTail int) *LineTee {
	if maxTail <= 0 {
		maxTail = DefaultTailLines
	}

	return &LineTee{maxTail: maxTail}
}

// Consume reads r until EOF, calling fn with each line without its line
// terminator. A final line without a newline is still delivered.
// It returns nil at EOF and the read error otherwise.
func (lt *LineTee) Consume(r io.Reader, fn func(line string)) error {
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			lt.add(line)

			if fn != nil {
				fn(line)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err //nolint:wrapcheck
		}
	}
}

func (lt *LineTee) add(line string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.lines++
	lt.lastLine = line

	lt.tail = append(lt.tail, line)
	if len(lt.tail) > lt.maxTail {
		lt.tail = lt.tail[len(lt.tail)-lt.maxTail:]
	}
}

// Tail returns a copy of the kept lines, oldest first.
func (lt *LineTee) Tail() []string {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	out := make([]string, len(lt.tail))
	copy(out, lt.tail)

	return out
}

// Lines returns the number of lines seen.
func (lt *LineTee) Lines() int {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	return lt.lines
}

// LastLine returns the last line that was read.
// If maxLength > 0, it truncates the line to that length and appends "..." if it exceeds that length.
func (lt *LineTee) LastLine(maxLength int) string {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	return Truncate(lt.lastLine, maxLength)
}

// Truncate shortens s to maxLength, ending it with "..." when it was cut.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 || len(s) <= maxLength {
		return s
	}

	if maxLength <= 3 {
		return s[:maxLength]
	}

	return s[:maxLength-3] + "..."
}
