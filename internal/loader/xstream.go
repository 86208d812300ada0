package loader

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/goatdb/llama/internal/mlcsr"
	"github.com/goatdb/llama/pkg/config"
	llerrors "github.com/goatdb/llama/pkg/errors"
)

// ============================================================================
// X-Stream Type 1
// ============================================================================

// XStream1Parser reads packed <tail:u32, head:u32, weight:f32> records.
type XStream1Parser struct{}

// Name returns the format name.
func (p *XStream1Parser) Name() string { return "xstream-type1" }

// Extensions returns the claimed file extensions.
func (p *XStream1Parser) Extensions() []string { return []string{".xs1"} }

// Parse reads the file and emits its edges. The read buffer follows the
// configured external-sort memory budget, capped to something sane.
func (p *XStream1Parser) Parse(path string, cfg *config.LoaderConfig, emit func(Edge) error) error {
	f, err := os.Open(path)
	if err != nil {
		return llerrors.Wrap(llerrors.CodeParseError, "cannot open X-Stream file", err)
	}
	defer f.Close()

	bufSize := 1 << 20
	if cfg != nil && cfg.XSBufferSize > 0 && cfg.XSBufferSize < int64(bufSize) {
		bufSize = int(cfg.XSBufferSize)
	}
	r := bufio.NewReaderSize(f, bufSize)

	var rec [12]byte
	for {
		_, err := io.ReadFull(r, rec[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return llerrors.Wrap(llerrors.CodeParseError, "truncated X-Stream file", err)
		}
		e := Edge{
			Tail:   mlcsr.NodeID(binary.LittleEndian.Uint32(rec[0:4])),
			Head:   mlcsr.NodeID(binary.LittleEndian.Uint32(rec[4:8])),
			Weight: math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12])),
		}
		if err := emit(e); err != nil {
			return err
		}
	}
}
