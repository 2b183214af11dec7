package urscript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenInstrumenter(t *testing.T) {
	tests := []struct {
		name     string
		program  string
		expected string
		err      error
	}{
		{
			name:    "Single Definition",
			program: "def move():\n  movej(p)\nend\n",
			expected: "def move():\n  write_output_boolean_register(0, True)\n  movej(p)\n" +
				"\n  write_output_boolean_register(1, True)\nend\n",
		},
		{
			name:    "Definition Without Trailing Newline",
			program: "def move():\n  movej(p)\nend",
			expected: "def move():\n  write_output_boolean_register(0, True)\n  movej(p)\n" +
				"\n  write_output_boolean_register(1, True)\nend",
		},
		{
			name:    "Identifiers Containing End",
			program: "def move():\n  end_pose = p\n  append(end_pose)\nend\n# legend\n",
			expected: "def move():\n  write_output_boolean_register(0, True)\n  end_pose = p\n  append(end_pose)\n" +
				"\n  write_output_boolean_register(1, True)\nend\n# legend\n",
		},
		{
			name:    "Statement Without Definition",
			program: "movej(p)",
			expected: "def script():\n  write_output_boolean_register(0, True)\n  movej(p)" +
				"\n  write_output_boolean_register(1, True)\nend\n",
		},
		{
			name:    "Header Without Colon",
			program: "def move()\n  movej(p)\nend\n",
			err:     ErrMalformedProgram,
		},
		{
			name:    "Missing End",
			program: "def move():\n  movej(p)\n",
			err:     ErrMalformedProgram,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			out, err := TokenInstrumenter{}.Instrument(tt.program)
			if tt.err != nil {
				require.ErrorIs(err, tt.err)
				return
			}

			require.NoError(err)
			require.Equal(tt.expected, out)
			require.Equal(1, strings.Count(out, "write_output_boolean_register(0, True)"))
			require.Equal(1, strings.Count(out, "write_output_boolean_register(1, True)"))
		})
	}
}

func TestTokenInstrumenter_MultipleDefinitions(t *testing.T) {
	require := require.New(t)

	program := "def main():\n  helper()\nend\ndef helper():\n  movej(p)\nend\n"
	out, err := TokenInstrumenter{}.Instrument(program)
	require.NoError(err)

	// start marker in the first definition, finish marker before the last end
	require.True(strings.HasPrefix(out, "def main():\n  write_output_boolean_register(0, True)\n  helper()\n"))
	require.True(strings.HasSuffix(out, "  movej(p)\n\n  write_output_boolean_register(1, True)\nend\n"))
}
