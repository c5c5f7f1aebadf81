package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"control unit service as advertised": {"39DF7777-B1B4-B90B-57F1-7144AE4E4A6A", CarreraService},
		"control unit service in braces":     {"{39df7777-b1b4-b90b-57f1-7144ae4e4a6a}", CarreraService},
		"output characteristic padded":       {"  39df8888-b1b4-b90b-57f1-7144ae4e4a6a ", CarreraOutput},
		"battery level with 0x":              {"0x2A19", "2a19"},
		"battery level on the SIG base":      {"00002A19-0000-1000-8000-00805F9B34FB", "2a19"},
		"SIG base without dashes in braces":  {"{0000180f00001000800000805f9b34fb}", "180f"},
		"short test id":                      {"A1", "a1"},
		"32-bit id is kept":                  {"0x12345678", "12345678"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUUID(tt.in))
		})
	}
}

func TestNormalizeUUID_VendorUUIDIsNotCollapsed(t *testing.T) {
	// only the SIG base collapses to 16 bits, whatever the leading bytes
	assert.Len(t, NormalizeUUID("0000abcd-b1b4-b90b-57f1-7144ae4e4a6a"), 32)
}

func TestNormalizeUUIDs(t *testing.T) {
	got := NormalizeUUIDs([]string{"0x2A19", "39DF9999-B1B4-B90B-57F1-7144AE4E4A6A", "a1"})
	assert.Equal(t, []string{"2a19", CarreraNotification, "a1"}, got)
	assert.Empty(t, NormalizeUUIDs(nil))
}

func TestLookupNames(t *testing.T) {
	assert.Equal(t, "Carrera Control Unit", LookupService("39DF7777-B1B4-B90B-57F1-7144AE4E4A6A"))
	assert.Equal(t, "Battery Service", LookupService("0000180f-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Control Unit Output", LookupCharacteristic(CarreraOutput))
	assert.Equal(t, "Control Unit Notification", LookupCharacteristic("{39df9999-b1b4-b90b-57f1-7144ae4e4a6a}"))
	assert.Equal(t, "Battery Level", LookupCharacteristic("0x2a19"))

	assert.Empty(t, LookupService("a1"))
	assert.Empty(t, LookupCharacteristic(CarreraService), "service ids MUST NOT resolve as characteristics")
}
