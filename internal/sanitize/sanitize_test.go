package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirname(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Learning Go", "Learning Go"},
		{"late colon cuts subtitle", "Designing Data-Intensive Applications: The Big Ideas", "Designing Data-Intensive Applications"},
		{"early colon becomes comma", "Go: Up and Running", "Go, Up and Running"},
		{"reserved characters", `C++ How? <To> "Program"`, "C__ How_ _To_ _Program_"},
		{"path separators", "TCP/IP Illustrated", "TCP_IP Illustrated"},
		{"accents fold to base letters", "Café Récit", "Cafe Recit"},
		{"empty", "", "untitled"},
		{"only reserved", "???", "___"},
		{"surrounding space trimmed", "  Title  ", "Title"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Dirname(c.in))
		})
	}
}
