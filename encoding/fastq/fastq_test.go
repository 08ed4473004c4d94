package fastq

import (
	"bytes"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

const fq = `@read1
ACGTACGT
+
!!!!IIII
@read2
TTGGCC
+
IIIIII
`

func TestScanWrite(t *testing.T) {
	s := NewScanner(bytes.NewReader([]byte(fq)))
	var (
		reads []Read
		r     Read
	)
	for s.Scan(&r) {
		reads = append(reads, r)
	}
	assert.NoError(t, s.Err())
	assert.Equal(t, 2, len(reads))
	assert.Equal(t, Read{ID: "@read1", Seq: "ACGTACGT", Unk: "+", Qual: "!!!!IIII"}, reads[0])

	b := new(bytes.Buffer)
	w := NewWriter(b)
	for i := range reads {
		assert.NoError(t, w.Write(&reads[i]))
	}
	assert.Equal(t, fq, b.String())
}

func TestScanErrors(t *testing.T) {
	scanErr := func(text string) error {
		s := NewScanner(bytes.NewReader([]byte(text)))
		var r Read
		for s.Scan(&r) {
		}
		return s.Err()
	}
	assert.Equal(t, ErrInvalid, scanErr("12312#"))
	assert.Equal(t, ErrShort, scanErr("@1234\nACGT"))
	assert.NoError(t, scanErr(""))
}

func TestFromSAM(t *testing.T) {
	rec := &sam.Record{
		Name: "read7",
		Seq:  sam.NewSeq([]byte("ACGT")),
		Qual: []byte{0, 0, 0, 40},
	}
	r := FromSAM(rec)
	assert.Equal(t, "@read7", r.ID)
	assert.Equal(t, "ACGT", r.Seq)
	assert.Equal(t, "+", r.Unk)
	assert.Equal(t, "!!!I", r.Qual)
}
