package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/traditionalchinese"
)

func makeDataset(n int) *Dataset {
	ds := &Dataset{Columns: []string{"id", "answer"}}
	for i := 0; i < n; i++ {
		ds.Records = append(ds.Records, Record{"id": fmt.Sprint(i), "answer": "a"})
	}
	return ds
}

func TestPartition_Coverage(t *testing.T) {
	for total := 0; total <= 25; total++ {
		for size := 1; size <= 7; size++ {
			ds := makeDataset(total)
			chunks := Partition(ds, size)

			wantChunks := (total + size - 1) / size
			if len(chunks) != wantChunks {
				t.Fatalf("R=%d size=%d: expected %d chunks, got %d", total, size, wantChunks, len(chunks))
			}

			next := 0
			for i, c := range chunks {
				if c.StartIndex != next {
					t.Fatalf("R=%d size=%d chunk %d: start %d, want %d", total, size, i, c.StartIndex, next)
				}
				if i < len(chunks)-1 && len(c.Records) != size {
					t.Fatalf("R=%d size=%d chunk %d: %d records, want %d", total, size, i, len(c.Records), size)
				}
				if c.Total != total {
					t.Fatalf("chunk total %d, want %d", c.Total, total)
				}
				for j, rec := range c.Records {
					if rec["id"] != fmt.Sprint(next+j) {
						t.Fatalf("R=%d size=%d: record out of order at %d", total, size, next+j)
					}
				}
				if c.EndIndex() != c.StartIndex+len(c.Records)-1 {
					t.Fatalf("end index mismatch")
				}
				next += len(c.Records)
			}
			if next != total {
				t.Fatalf("R=%d size=%d: covered %d records", total, size, next)
			}
		}
	}
}

func TestPartition_ChunkOwnsRecords(t *testing.T) {
	ds := makeDataset(4)
	chunks := Partition(ds, 2)
	chunks[0].Records[0] = Record{"id": "changed"}
	if ds.Records[0]["id"] != "0" {
		t.Error("chunk records should not alias the dataset slice")
	}
}

func TestDocumentChunks(t *testing.T) {
	chunks := DocumentChunks([]Document{{Name: "a.md"}, {Name: "b.md"}})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].StartIndex != 1 || chunks[1].EndIndex() != 1 || chunks[1].Document != "b.md" {
		t.Errorf("unexpected chunk: %+v", chunks[1])
	}
}

func TestRecordsJSON_ColumnOrder(t *testing.T) {
	c := Chunk{
		Columns: []string{"姓名", "age", "note"},
		Records: []Record{{"姓名": "小明", "age": "21", "note": `say "hi" <b>`}},
	}
	got := c.RecordsJSON()
	want := `[{"姓名": "小明", "age": "21", "note": "say \"hi\" <b>"}]`
	if got != want {
		t.Errorf("RecordsJSON = %s\nwant %s", got, want)
	}

	var decoded []map[string]string
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestParseCSV_UTF8WithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,city,name\n王小明,台北,x\nAnna,Zürich\n")...)

	ds, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Encoding != "UTF-8" {
		t.Errorf("expected UTF-8, got %s", ds.Encoding)
	}
	wantCols := []string{"name", "city", "name.1"}
	for i, c := range wantCols {
		if ds.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, ds.Columns[i], c)
		}
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", ds.Len())
	}
	if ds.Records[0]["name"] != "王小明" || ds.Records[1]["city"] != "Zürich" {
		t.Errorf("unexpected records: %+v", ds.Records)
	}
	if ds.Records[1]["name.1"] != "" {
		t.Errorf("short row should be padded, got %q", ds.Records[1]["name.1"])
	}
}

func TestParseCSV_Errors(t *testing.T) {
	if _, err := ParseCSV(nil); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
	if _, err := ParseCSV([]byte("a,b\n1,2,3\n")); err == nil {
		t.Error("expected error for row wider than header")
	}
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	ds, err := ParseCSV([]byte("a,b\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Len() != 0 || len(Partition(ds, 10)) != 0 {
		t.Error("header-only table should produce no records and no chunks")
	}
}

func TestDetectEncoding_TruncatedSample(t *testing.T) {
	// A three-byte rune straddles the sample boundary.
	data := []byte(strings.Repeat("a", sampleSize-1) + "問卷")
	enc, err := DetectEncoding(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc != "UTF-8" {
		t.Errorf("expected UTF-8, got %s", enc)
	}
}

func TestDecodeText_Big5(t *testing.T) {
	raw, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte("問卷資料"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := DecodeText(raw, "Big5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "問卷資料" {
		t.Errorf("expected round trip, got %q", text)
	}
}

func TestDecodeText_Unsupported(t *testing.T) {
	if _, err := DecodeText([]byte("x"), "klingon-1"); err == nil {
		t.Error("expected error for unknown charset")
	}
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "interview1.md")
	p2 := filepath.Join(dir, "interview2.txt")
	os.WriteFile(p1, []byte("# 訪談一\n學生想練習口說"), 0o644)
	os.WriteFile(p2, []byte("second"), 0o644)

	docs, err := LoadDocuments([]string{p1, p2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].Name != "interview1.md" || !strings.Contains(docs[0].Text, "口說") {
		t.Errorf("unexpected doc: %+v", docs[0])
	}

	if _, err := LoadDocuments([]string{filepath.Join(dir, "missing.md")}); err == nil {
		t.Error("expected error for missing document")
	}
}
