package avews

import (
	"strconv"
	"strings"
	"testing"
)

func BenchmarkEncode(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Encode("EBI", "42", "10")
	}
}

func BenchmarkChecksum(b *testing.B) {
	payload := "\x02GSF\x1d12\x03"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Checksum(payload)
	}
}

func BenchmarkDecode_StatusReply(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("\x02gsf\x1d1")
	for id := 1; id <= 64; id++ {
		sb.WriteString("\x1e" + strconv.Itoa(id) + "\x1d" + strconv.Itoa(id%2))
	}
	sb.WriteString("\x0300\x04")
	raw := []byte(sb.String())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(raw)
	}
}
