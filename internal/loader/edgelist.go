package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/pkg/config"
	llerrors "github.com/goatdb/llama/pkg/errors"
)

// ============================================================================
// Text edge list
// ============================================================================

// TextEdgeListParser reads whitespace-separated "tail head [weight]"
// lines. Lines starting with '#' or '%' are comments.
type TextEdgeListParser struct{}

// Name returns the format name.
func (p *TextEdgeListParser) Name() string { return "edge-list-text" }

// Extensions returns the claimed file extensions.
func (p *TextEdgeListParser) Extensions() []string { return []string{".net", ".txt", ".el"} }

// Parse reads the file and emits its edges.
func (p *TextEdgeListParser) Parse(path string, cfg *config.LoaderConfig, emit func(Edge) error) error {
	f, err := os.Open(path)
	if err != nil {
		return llerrors.Wrap(llerrors.CodeParseError, "cannot open edge list", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '%' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return llerrors.New(llerrors.CodeParseError,
				fmt.Sprintf("%s:%d: expected at least two fields", path, lineNo))
		}
		tail, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return llerrors.Wrap(llerrors.CodeParseError,
				fmt.Sprintf("%s:%d: bad tail", path, lineNo), err)
		}
		head, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return llerrors.Wrap(llerrors.CodeParseError,
				fmt.Sprintf("%s:%d: bad head", path, lineNo), err)
		}
		var weight float64
		if len(fields) >= 3 {
			weight, err = strconv.ParseFloat(fields[2], 32)
			if err != nil {
				return llerrors.Wrap(llerrors.CodeParseError,
					fmt.Sprintf("%s:%d: bad weight", path, lineNo), err)
			}
		}
		e := Edge{Tail: mlcsr.NodeID(tail), Head: mlcsr.NodeID(head), Weight: float32(weight)}
		if err := emit(e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return llerrors.Wrap(llerrors.CodeParseError, "edge list read failed", err)
	}
	return nil
}

// ============================================================================
// Binary edge list
// ============================================================================

// BinaryEdgeListParser reads little-endian <tail:u64, head:u64> records.
type BinaryEdgeListParser struct{}

// Name returns the format name.
func (p *BinaryEdgeListParser) Name() string { return "edge-list-binary" }

// Extensions returns the claimed file extensions.
func (p *BinaryEdgeListParser) Extensions() []string { return []string{".bin", ".dat"} }

// Parse reads the file and emits its edges.
func (p *BinaryEdgeListParser) Parse(path string, cfg *config.LoaderConfig, emit func(Edge) error) error {
	f, err := os.Open(path)
	if err != nil {
		return llerrors.Wrap(llerrors.CodeParseError, "cannot open edge list", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var rec [16]byte
	for {
		_, err := io.ReadFull(r, rec[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return llerrors.Wrap(llerrors.CodeParseError, "truncated binary edge list", err)
		}
		e := Edge{
			Tail: mlcsr.NodeID(binary.LittleEndian.Uint64(rec[0:8])),
			Head: mlcsr.NodeID(binary.LittleEndian.Uint64(rec[8:16])),
		}
		if err := emit(e); err != nil {
			return err
		}
	}
}
