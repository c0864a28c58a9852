package tdbf

import "testing"

func TestDialectFor_KnownVersions(t *testing.T) {
	tests := []struct {
		version byte
		name    string
		memo    bool
	}{
		{0x03, "dBASE III", false},
		{0x30, "Visual FoxPro", false},
		{0x32, "Visual FoxPro with varchar/varbinary", false},
		{0x83, "dBASE III with memo", true},
		{0x8B, "dBASE IV with memo", true},
		{0xF5, "FoxPro with memo", true},
		{0xB3, "Flagship", true},
	}
	for _, test := range tests {
		d := dialectFor(test.version)
		if d.Name != test.name {
			t.Errorf("version 0x%02x: expected name %q, got %q", test.version, test.name, d.Name)
		}
		if d.MemoExpected != test.memo {
			t.Errorf("version 0x%02x: expected memo %v, got %v", test.version, test.memo, d.MemoExpected)
		}
	}
}

func TestDialectFor_DecimalAsLengthHigh(t *testing.T) {
	if !dialectFor(0x31).DecimalAsLengthHigh {
		t.Error("expected 0x31 to use the decimal byte as length high byte")
	}
	if dialectFor(0x32).DecimalAsLengthHigh {
		t.Error("expected 0x32 to take length and decimals literally")
	}
}

func TestDialectFor_Wildcards(t *testing.T) {
	for _, version := range []byte{0x04, 0x14, 0x74} {
		d := dialectFor(version)
		if d.Name != "dBASE 7" {
			t.Errorf("version 0x%02x: expected dBASE 7, got %q", version, d.Name)
		}
	}
	d := dialectFor(0x0C)
	if d.Name != "dBASE 7 with memo" || !d.MemoExpected {
		t.Errorf("version 0x0C: expected dBASE 7 with memo, got %+v", d)
	}
}

func TestDialectFor_Unknown(t *testing.T) {
	d := dialectFor(0xFF)
	if d.Name != "unknown" {
		t.Errorf("expected unknown dialect, got %q", d.Name)
	}
	if d.MemoExpected || d.DecimalAsLengthHigh || d.SingleByteTerminator || d.Flagship {
		t.Errorf("expected all flags off for unknown dialect, got %+v", d)
	}
}

func TestDialectFor_FlagshipFlags(t *testing.T) {
	d := dialectFor(0xB3)
	if !d.Flagship {
		t.Error("expected the Flagship flag")
	}
	if !d.SingleByteTerminator {
		t.Error("expected the single byte memo terminator")
	}
}
