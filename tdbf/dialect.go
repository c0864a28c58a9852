package tdbf

// Dialect is the set of parsing and emission rules selected by the version
// byte of the table header. It is resolved once at open and passed around
// immutably; nothing dispatches on the raw version byte afterwards.
type Dialect struct {
	Name string
	// A memo sidecar file is expected next to the table file.
	MemoExpected bool
	// The decimal count byte of an N or I descriptor supplies the high
	// byte of the field length, extending it beyond 255.
	DecimalAsLengthHigh bool
	// Memo values are terminated by a single 0x1A instead of 0x1A 0x1A.
	SingleByteTerminator bool
	// Flagship variant, changes the interpretation of V and X fields.
	Flagship bool
}

var dialects = map[byte]Dialect{
	0x02: {Name: "FoxBASE"},
	0x03: {Name: "dBASE III"},
	0x05: {Name: "dBASE V"},
	0x07: {Name: "Visual Objects 1.x"},
	0x30: {Name: "Visual FoxPro"},
	0x31: {Name: "Visual FoxPro with autoincrement", DecimalAsLengthHigh: true},
	0x32: {Name: "Visual FoxPro with varchar/varbinary"},
	0x43: {Name: "dBASE IV SQL table"},
	0x63: {Name: "dBASE IV SQL system"},
	0x7B: {Name: "dBASE IV with memo", MemoExpected: true},
	0x83: {Name: "dBASE III with memo", MemoExpected: true},
	0x87: {Name: "Visual Objects 1.x with memo", MemoExpected: true},
	0x8B: {Name: "dBASE IV with memo", MemoExpected: true},
	0x8E: {Name: "dBASE IV with SQL table", MemoExpected: true},
	0xB3: {Name: "Flagship", MemoExpected: true, DecimalAsLengthHigh: true, SingleByteTerminator: true, Flagship: true},
	0xCB: {Name: "dBASE IV SQL table with memo", MemoExpected: true},
	0xE5: {Name: "Clipper SIX with SMT memo", MemoExpected: true, DecimalAsLengthHigh: true, SingleByteTerminator: true},
	0xF5: {Name: "FoxPro with memo", MemoExpected: true},
	0xFB: {Name: "FoxBASE with memo", MemoExpected: true},
}

// dialectFor resolves the version byte of the header. Exact matches win,
// then the dBASE 7 low-nibble wildcards ?4 and ?C apply. Anything else is
// the "unknown" dialect with every flag off.
func dialectFor(version byte) Dialect {
	if d, ok := dialects[version]; ok {
		return d
	}
	switch version & 0x0F {
	case 0x04:
		return Dialect{Name: "dBASE 7"}
	case 0x0C:
		return Dialect{Name: "dBASE 7 with memo", MemoExpected: true}
	}
	return Dialect{Name: "unknown"}
}

// The version byte written by CreateTable, Visual FoxPro with varchar/varbinary.
const defaultVersion byte = 0x32
