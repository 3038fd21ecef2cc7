package scoring

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// CSVHeader is the column order of the score report.
var CSVHeader = []string{"chip_id", "f1_all", "f1_urban", "f1_not_urban", "iou_all", "iou_urban", "iou_not_urban"}

// ChipScore is one report row: label-averaged scores of a chip.
type ChipScore struct {
	Experiment  string
	ChipID      string
	F1All       float64
	F1Urban     float64
	F1NotUrban  float64
	IoUAll      float64
	IoUUrban    float64
	IoUNotUrban float64
}

// NewChipScore summarises s for one chip.
func NewChipScore(experiment, chipID string, s Scores) ChipScore {
	all, urban, notUrban := s.Mean(All), s.Mean(Urban), s.Mean(NotUrban)
	return ChipScore{
		Experiment:  experiment,
		ChipID:      chipID,
		F1All:       all.F1,
		F1Urban:     urban.F1,
		F1NotUrban:  notUrban.F1,
		IoUAll:      all.IoU,
		IoUUrban:    urban.IoU,
		IoUNotUrban: notUrban.IoU,
	}
}

func (c ChipScore) values() []float64 {
	return []float64{c.F1All, c.F1Urban, c.F1NotUrban, c.IoUAll, c.IoUUrban, c.IoUNotUrban}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes rows with a header.
func WriteCSV(w io.Writer, rows []ChipScore) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return eris.Wrap(err, "scoring: write csv header")
	}
	for _, r := range rows {
		record := []string{r.ChipID}
		for _, v := range r.values() {
			record = append(record, formatScore(v))
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "scoring: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "scoring: flush csv")
}

// WriteCSVFile writes rows to path, creating parent directories.
func WriteCSVFile(path string, rows []ChipScore) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "scoring: create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "scoring: create %s", path)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "scoring: close %s", path)
}

// WriteXLSX writes one sheet per experiment with the CSV columns.
func WriteXLSX(path string, rows []ChipScore) error {
	f := xlsx.NewFile()
	sheets := map[string]*xlsx.Sheet{}
	for _, r := range rows {
		name := r.Experiment
		if name == "" {
			name = "scores"
		}
		sheet, ok := sheets[name]
		if !ok {
			var err error
			sheet, err = f.AddSheet(sheetName(name))
			if err != nil {
				return eris.Wrapf(err, "scoring: add sheet %s", name)
			}
			header := sheet.AddRow()
			for _, h := range CSVHeader {
				header.AddCell().SetString(h)
			}
			sheets[name] = sheet
		}

		row := sheet.AddRow()
		row.AddCell().SetString(r.ChipID)
		for _, v := range r.values() {
			row.AddCell().SetFloat(v)
		}
	}
	if len(sheets) == 0 {
		if _, err := f.AddSheet("scores"); err != nil {
			return eris.Wrap(err, "scoring: add sheet")
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "scoring: create %s", filepath.Dir(path))
	}
	return eris.Wrapf(f.Save(path), "scoring: save %s", path)
}

// sheetName trims a name to the 31 characters spreadsheets allow.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
