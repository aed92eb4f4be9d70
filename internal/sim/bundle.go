package sim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

const bundleVersion uint16 = 1

// Bundle is a `.kmb` reproduction bundle (spec §6): a seed, the scenario
// name, the serialized scenario config, and the compressed event log,
// sufficient on its own to replay a failing run deterministically.
// klauspost/compress/zstd has no teacher precedent (the teacher repo
// never compresses anything) but is grounded on its recurring presence
// across the rest of the retrieved corpus wherever an event/snapshot log
// needs compact durable storage.
type Bundle struct {
	Version      uint16
	Seed         uint64
	ScenarioName string
	ConfigBlob   []byte
	Events       []EventRecord
}

// EventRecord is one entry in a bundle's compact event log: enough to
// replay the decision the simulator made at that tick without re-running
// its RNG draws (which would already be reproducible from the seed, but
// recording the outcome lets `kimberlite-vopr replay` diff expected vs.
// actual without re-deriving fault decisions by hand).
type EventRecord struct {
	Tick    Tick
	Kind    EventKind
	Replica int
	Detail  string
}

// WriteBundle serializes b to w as: version(2) seed(8) name_len(4) name
// config_len(4) config events_compressed_len(8) events_compressed. The
// event log is newline-delimited "tick\tkind\treplica\tdetail" records,
// zstd-compressed as a single frame.
func WriteBundle(w io.Writer, b *Bundle) error {
	var eventBuf bytes.Buffer
	for _, e := range b.Events {
		fmt.Fprintf(&eventBuf, "%d\t%s\t%d\t%s\n", e.Tick, e.Kind, e.Replica, e.Detail)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("sim: create zstd encoder: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(eventBuf.Bytes(), nil)

	if err := binary.Write(w, binary.LittleEndian, bundleVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.Seed); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, []byte(b.ScenarioName)); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, b.ConfigBlob); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(compressed))); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

func writeLenPrefixed(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadBundle parses a `.kmb` bundle previously written by WriteBundle.
func ReadBundle(r io.Reader) (*Bundle, error) {
	b := &Bundle{}
	if err := binary.Read(r, binary.LittleEndian, &b.Version); err != nil {
		return nil, fmt.Errorf("sim: read bundle version: %w", err)
	}
	if b.Version != bundleVersion {
		return nil, fmt.Errorf("sim: unsupported bundle version %d", b.Version)
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Seed); err != nil {
		return nil, fmt.Errorf("sim: read bundle seed: %w", err)
	}
	name, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("sim: read scenario name: %w", err)
	}
	b.ScenarioName = string(name)
	b.ConfigBlob, err = readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("sim: read config blob: %w", err)
	}

	var compressedLen uint64
	if err := binary.Read(r, binary.LittleEndian, &compressedLen); err != nil {
		return nil, fmt.Errorf("sim: read compressed length: %w", err)
	}
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("sim: read compressed events: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("sim: create zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("sim: decompress events: %w", err)
	}
	b.Events = parseEventLog(raw)
	return b, nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}

func parseEventLog(raw []byte) []EventRecord {
	var out []EventRecord
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var tick uint64
		var kind, detail string
		var replica int
		fmt.Sscanf(string(line), "%d\t%s\t%d\t%s", &tick, &kind, &replica, &detail)
		out = append(out, EventRecord{Tick: Tick(tick), Kind: EventKind(kind), Replica: replica, Detail: detail})
	}
	return out
}

// SaveBundleFile writes b to path, creating or truncating it.
func SaveBundleFile(path string, b *Bundle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sim: create bundle file: %w", err)
	}
	defer f.Close()
	return WriteBundle(f, b)
}

// LoadBundleFile reads a bundle previously saved with SaveBundleFile.
func LoadBundleFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sim: open bundle file: %w", err)
	}
	defer f.Close()
	return ReadBundle(f)
}
