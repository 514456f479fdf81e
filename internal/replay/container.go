package replay

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"volley-duel/internal/archive"
)

// FileExtension is used for replays saved to disk.
const FileExtension = ".vdr"

const (
	magic      = "VDREPLAY"
	maxFileLen = 64 << 20
)

var (
	ErrNotReplay        = errors.New("replay: not a replay container")
	ErrChecksumMismatch = errors.New("replay: checksum mismatch")
	ErrVersionMismatch  = errors.New("replay: unsupported version")
	ErrCorrupt          = errors.New("replay: corrupt content")
)

// ChecksumError reports a container whose body does not match its header.
type ChecksumError struct {
	Want, Got uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("replay: checksum mismatch: header %08x, content %08x", e.Want, e.Got)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// VersionError reports a container written by an incompatible version.
type VersionError struct {
	Major, Minor int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("replay: version %d.%d not supported (want %d.x)", e.Major, e.Minor, VersionMajor)
}

func (e *VersionError) Is(target error) bool { return target == ErrVersionMismatch }

type xmlVersion struct {
	Major int `xml:"major,attr"`
	Minor int `xml:"minor,attr"`
}

type xmlVar struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlReplay struct {
	XMLName xml.Name   `xml:"replay"`
	Version xmlVersion `xml:"version"`
	Vars    []xmlVar   `xml:"var"`
	Rules   string     `xml:"rules"`
	Input   string     `xml:"input"`
	States  string     `xml:"states"`
}

// Save writes the container: a "VDREPLAY <crc32>" line followed by the XML
// document the checksum covers.
func (r *Replay) Save(w io.Writer) error {
	states := archive.NewBitWriter()
	archive.Sequence(states, &r.SavePoints)
	if err := states.Err(); err != nil {
		return fmt.Errorf("encode save points: %w", err)
	}

	doc := xmlReplay{
		Version: xmlVersion{Major: VersionMajor, Minor: VersionMinor},
		Vars:    r.vars(),
		Rules:   r.Rules,
		Input:   base64.StdEncoding.EncodeToString(r.Inputs),
		States:  base64.StdEncoding.EncodeToString(states.Data()),
	}

	var body bytes.Buffer
	body.WriteString(xml.Header)
	enc := xml.NewEncoder(&body)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode replay: %w", err)
	}
	body.WriteByte('\n')

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %08x\n", magic, crc32.ChecksumIEEE(body.Bytes()))
	bw.Write(body.Bytes())
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write replay: %w", err)
	}
	return nil
}

// Load reads a container. The header, then the checksum, then the version
// are checked before the content is decoded; on any failure the replay is
// nil.
func Load(rd io.Reader) (*Replay, error) {
	data, err := io.ReadAll(io.LimitReader(rd, maxFileLen+1))
	if err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	if len(data) > maxFileLen {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrNotReplay, maxFileLen)
	}

	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, ErrNotReplay
	}
	header, body := string(data[:nl]), data[nl+1:]
	fields := strings.Fields(header)
	if len(fields) != 2 || fields[0] != magic {
		return nil, ErrNotReplay
	}
	want, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad checksum field %q", ErrNotReplay, fields[1])
	}
	if got := crc32.ChecksumIEEE(body); got != uint32(want) {
		return nil, &ChecksumError{Want: uint32(want), Got: got}
	}

	var doc xmlReplay
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version.Major != VersionMajor {
		return nil, &VersionError{Major: doc.Version.Major, Minor: doc.Version.Minor}
	}

	r, err := fromDocument(&doc)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func fromDocument(doc *xmlReplay) (*Replay, error) {
	r := &Replay{Rules: doc.Rules, Period: SavePointPeriod}
	if err := r.setVars(doc.Vars); err != nil {
		return nil, err
	}

	inputs, err := base64.StdEncoding.DecodeString(strings.TrimSpace(doc.Input))
	if err != nil {
		return nil, fmt.Errorf("%w: input: %v", ErrCorrupt, err)
	}
	for i, b := range inputs {
		if b&inputMarker == 0 {
			return nil, fmt.Errorf("%w: input byte %d is %#x", ErrCorrupt, i, b)
		}
	}
	r.Inputs = inputs

	states, err := base64.StdEncoding.DecodeString(strings.TrimSpace(doc.States))
	if err != nil {
		return nil, fmt.Errorf("%w: states: %v", ErrCorrupt, err)
	}
	sr := archive.NewBitReader(states)
	archive.Sequence(sr, &r.SavePoints)
	if err := sr.Err(); err != nil {
		return nil, fmt.Errorf("%w: states: %v", ErrCorrupt, err)
	}
	for i, sp := range r.SavePoints {
		if int(sp.Step) > len(r.Inputs) || (i > 0 && sp.Step < r.SavePoints[i-1].Step) {
			return nil, fmt.Errorf("%w: save point %d at step %d out of order", ErrCorrupt, i, sp.Step)
		}
	}
	if r.Length == 0 {
		r.Length = uint32(len(r.Inputs))
	}
	return r, nil
}

func (r *Replay) vars() []xmlVar {
	date := int64(0)
	if !r.Date.IsZero() {
		date = r.Date.Unix()
	}
	return []xmlVar{
		{"game_speed", strconv.Itoa(r.GameSpeed)},
		{"game_length", strconv.FormatUint(uint64(r.Length), 10)},
		{"game_duration", strconv.FormatUint(uint64(r.Duration), 10)},
		{"game_date", strconv.FormatInt(date, 10)},
		{"score_left", strconv.FormatUint(uint64(r.Score[0]), 10)},
		{"score_right", strconv.FormatUint(uint64(r.Score[1]), 10)},
		{"name_left", r.Names[0]},
		{"name_right", r.Names[1]},
		{"color_left", r.Colors[0]},
		{"color_right", r.Colors[1]},
		{"savepoint_period", strconv.FormatUint(uint64(r.Period), 10)},
		{"rules_kind", r.RulesKind},
	}
}

func (r *Replay) setVars(vars []xmlVar) error {
	u32 := func(name, v string, dst *uint32) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: var %s=%q", ErrCorrupt, name, v)
		}
		*dst = uint32(n)
		return nil
	}

	for _, v := range vars {
		var err error
		switch v.Name {
		case "game_speed":
			var n uint32
			err = u32(v.Name, v.Value, &n)
			r.GameSpeed = int(n)
		case "game_length":
			err = u32(v.Name, v.Value, &r.Length)
		case "game_duration":
			err = u32(v.Name, v.Value, &r.Duration)
		case "game_date":
			var sec int64
			sec, err = strconv.ParseInt(v.Value, 10, 64)
			if err == nil && sec != 0 {
				r.Date = time.Unix(sec, 0).UTC()
			}
		case "score_left":
			err = u32(v.Name, v.Value, &r.Score[0])
		case "score_right":
			err = u32(v.Name, v.Value, &r.Score[1])
		case "name_left":
			r.Names[0] = v.Value
		case "name_right":
			r.Names[1] = v.Value
		case "color_left":
			r.Colors[0] = v.Value
		case "color_right":
			r.Colors[1] = v.Value
		case "rules_kind":
			r.RulesKind = v.Value
		case "savepoint_period":
			err = u32(v.Name, v.Value, &r.Period)
			if err == nil && r.Period == 0 {
				err = fmt.Errorf("%w: zero savepoint period", ErrCorrupt)
			}
		}
		if err != nil {
			if !errors.Is(err, ErrCorrupt) {
				err = fmt.Errorf("%w: var %s: %v", ErrCorrupt, v.Name, err)
			}
			return err
		}
	}
	return nil
}

// SaveFile writes r to path through a temporary file and a rename.
func (r *Replay) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create replay dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".replay-*")
	if err != nil {
		return fmt.Errorf("create replay: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close replay: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads the replay at path.
func LoadFile(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
