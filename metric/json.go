package metric

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// MarshalJSON encodes the group as a single-key object keyed by the group
// name. Metrics keep their insertion order. Scalars encode as bare numbers;
// distributions encode as {"summary": ..., "full_data": ...} with non-finite
// samples written as null.
func (g *Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeJSONString(&buf, g.name); err != nil {
		return nil, err
	}
	buf.WriteByte(':')
	buf.WriteByte('{')
	for i, m := range g.metrics {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, m.name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := m.appendValue(&buf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metric) appendValue(buf *bytes.Buffer) error {
	if m.IsScalar() {
		return writeJSONNumber(buf, *m.scalar)
	}
	buf.WriteString(`{"summary":`)
	if summary, ok := m.Summary(); ok {
		b, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		buf.Write(b)
	} else {
		buf.WriteString("null")
	}
	buf.WriteString(`,"full_data":[`)
	for i, v := range m.data {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONNumber(buf, v); err != nil {
			return err
		}
	}
	buf.WriteString(`]}`)
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func writeJSONNumber(buf *bytes.Buffer, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		buf.WriteString("null")
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// SaveGroups writes each group to <dir>/<group name>.json, creating the
// directory if needed. Saving the same groups twice produces byte-identical
// files.
func SaveGroups(dir string, groups []*Group) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "failed to create metrics directory")
	}
	for _, g := range groups {
		b, err := json.Marshal(g)
		if err != nil {
			return errors.Wrapf(err, "failed to encode metrics group %q", g.name)
		}
		path := filepath.Join(dir, g.name+".json")
		if err := os.WriteFile(path, b, 0o640); err != nil {
			return errors.Wrapf(err, "failed to write metrics group %q", g.name)
		}
	}
	return nil
}

// ParseGroup decodes a group previously written by SaveGroups, preserving the
// metric order of the file.
func ParseGroup(data []byte) (*Group, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read group name")
	}
	name, ok := tok.(string)
	if !ok {
		return nil, errors.New("metrics group document must be keyed by the group name")
	}
	g := NewGroup(name)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read metric name")
		}
		metricName, ok := tok.(string)
		if !ok {
			return nil, errors.New("expected a metric name")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "failed to read metric %q", metricName)
		}
		m, err := parseMetric(metricName, raw)
		if err != nil {
			return nil, err
		}
		g.Add(m)
	}
	return g, nil
}

// ParseGroupFile reads and decodes one group file.
func ParseGroupFile(path string) (*Group, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metrics group file")
	}
	return ParseGroup(b)
}

func parseMetric(name string, raw json.RawMessage) (*Metric, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.Errorf("metric %q has no value", name)
	}
	if trimmed[0] == '{' {
		var dist struct {
			FullData []*float64 `json:"full_data"`
		}
		if err := json.Unmarshal(trimmed, &dist); err != nil {
			return nil, errors.Wrapf(err, "failed to decode distribution metric %q", name)
		}
		data := make([]float64, len(dist.FullData))
		for i, v := range dist.FullData {
			if v == nil {
				data[i] = math.NaN()
				continue
			}
			data[i] = *v
		}
		return NewDistribution(name, data), nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, errors.Wrapf(err, "failed to decode scalar metric %q", name)
	}
	return NewScalar(name, v), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "failed to decode metrics group")
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Errorf("malformed metrics group document: expected %q", want)
	}
	return nil
}
