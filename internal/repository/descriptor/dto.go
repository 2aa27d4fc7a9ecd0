package descriptor

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

// Hash field names. __vector is the FT-indexed blob; the rest are TAG/NUMERIC
// metadata used for prefiltering and audits.
const (
	fieldVector       = "__vector"
	fieldReportID     = "report_id"
	fieldCategory     = "category"
	fieldActive       = "active"
	fieldModelVersion = "model_version"
	fieldCreatedAt    = "created_at"

	activeTrue  = "1"
	activeFalse = "0"
)

func allFields() []string {
	return []string{fieldVector, fieldReportID, fieldCategory, fieldActive, fieldModelVersion, fieldCreatedAt}
}

// buildHashFields converts a domain Descriptor into a flat map for HSET.
func buildHashFields(d *domain.Descriptor) map[string]string {
	active := activeFalse
	if d.Active {
		active = activeTrue
	}
	return map[string]string{
		fieldVector:       vectorToBytes(d.Vector),
		fieldReportID:     d.ReportID,
		fieldCategory:     d.Category,
		fieldActive:       active,
		fieldModelVersion: d.ModelVersion,
		fieldCreatedAt:    strconv.FormatInt(d.CreatedAt.UnixNano(), 10),
	}
}

// parseHashFields converts a flat hash map back into a domain Descriptor.
func parseHashFields(photoID string, m map[string]string) domain.Descriptor {
	d := domain.Descriptor{
		PhotoID:      photoID,
		ReportID:     m[fieldReportID],
		Category:     m[fieldCategory],
		Vector:       bytesToVector(m[fieldVector]),
		ModelVersion: m[fieldModelVersion],
		Active:       m[fieldActive] == activeTrue,
	}
	if ns, err := strconv.ParseInt(m[fieldCreatedAt], 10, 64); err == nil {
		d.CreatedAt = time.Unix(0, ns).UTC()
	}
	return d
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float,
// little-endian), matching the FT index blob layout.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// tagEscaper covers the FT.SEARCH TAG syntax characters that can appear in
// report ids and categories.
var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>", "{", "\\{", "}", "\\}",
	"[", "\\[", "]", "\\]", "\"", "\\\"", "'", "\\'", ":", "\\:", ";", "\\;",
	"!", "\\!", "@", "\\@", "#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)", "-", "\\-", "+", "\\+",
	"=", "\\=", "~", "\\~", " ", "\\ ", "|", "\\|", "/", "\\/",
)

// escapeTag escapes a value for use inside an FT TAG filter.
func escapeTag(v string) string {
	return tagEscaper.Replace(v)
}
