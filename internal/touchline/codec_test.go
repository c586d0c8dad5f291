package touchline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	body, err := BuildRequest(2, SystemStatusRegister)
	require.NoError(t, err)

	want := "<body><item_list>" +
		"<i><n>G0.RaumTemp</n></i>" +
		"<i><n>G0.SollTemp</n></i>" +
		"<i><n>G0.name</n></i>" +
		"<i><n>G1.RaumTemp</n></i>" +
		"<i><n>G1.SollTemp</n></i>" +
		"<i><n>G1.name</n></i>" +
		"<i><n>R0.SystemStatus</n></i>" +
		"</item_list></body>"
	assert.Equal(t, want, string(body))
}

func TestBuildRequestZoneCountBounds(t *testing.T) {
	for _, count := range []int{0, -1, 21, 100} {
		t.Run(fmt.Sprintf("count=%d", count), func(t *testing.T) {
			_, err := BuildRequest(count)
			assert.ErrorIs(t, err, ErrInvalidZoneCount)
		})
	}

	for _, count := range []int{1, 20} {
		t.Run(fmt.Sprintf("count=%d", count), func(t *testing.T) {
			_, err := BuildRequest(count)
			assert.NoError(t, err)
		})
	}
}

func TestRequestRegistersOrder(t *testing.T) {
	registers, err := RequestRegisters(1, SystemStatusRegister)
	require.NoError(t, err)
	assert.Equal(t, []string{"G0.RaumTemp", "G0.SollTemp", "G0.name", "R0.SystemStatus"}, registers)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "short element names",
			raw: `<body><item_list>` +
				`<i><n>G0.RaumTemp</n><v>2105</v></i>` +
				`<i><n>G0.name</n><v>Living Room</v></i>` +
				`</item_list></body>`,
			want: map[string]string{
				"G0.RaumTemp": "2105",
				"G0.name":     "Living Room",
			},
		},
		{
			name: "long element names",
			raw: `<response><item><name>G1.SollTemp</name><value>2200</value></item></response>`,
			want: map[string]string{"G1.SollTemp": "2200"},
		},
		{
			name: "unknown envelope and extra nodes ignored",
			raw: `<ILR><status>ok</status><items>` +
				`<i><seq>1</seq><n>R0.SystemStatus</n><v>0</v><crc>ab</crc></i>` +
				`</items></ILR>`,
			want: map[string]string{"R0.SystemStatus": "0"},
		},
		{
			name: "whitespace trimmed",
			raw:  "<body><i>\n  <n> G0.RaumTemp </n>\n  <v> 2050 </v>\n</i></body>",
			want: map[string]string{"G0.RaumTemp": "2050"},
		},
		{
			name: "zero recognized entries is not an error",
			raw:  `<body><foo>bar</foo></body>`,
			want: map[string]string{},
		},
		{
			name: "empty value kept",
			raw:  `<body><i><n>G0.name</n><v></v></i></body>`,
			want: map[string]string{"G0.name": ""},
		},
		{
			name:    "not markup",
			raw:     `404 not found`,
			wantErr: true,
		},
		{
			name:    "truncated markup",
			raw:     `<body><item_list><i><n>G0.RaumTemp`,
			wantErr: true,
		},
		{
			name:    "mismatched tags",
			raw:     `<body><i><n>G0.RaumTemp</v></i></body>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := ParseResponse([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, values)
		})
	}
}
