package detection

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileResult groups the detections decoded from one image file.
type FileResult struct {
	File       string      `json:"file"            yaml:"file"`
	Detections []Detection `json:"detections"      yaml:"detections"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Format renders results as text, json, csv or yaml.
func Format(results []FileResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case "json":
		return formatJSON(results)
	case "csv":
		return formatCSV(results)
	case "yaml", "yml":
		return formatYAML(results)
	case "", "text":
		return formatText(results), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatJSON(results []FileResult) (string, error) {
	doc := struct {
		Images []FileResult `json:"images"`
	}{Images: results}
	for i := range doc.Images {
		if doc.Images[i].Detections == nil {
			doc.Images[i].Detections = []Detection{}
		}
	}
	bts, err := json.MarshalIndent(doc, "", "  ")
	return string(bts), err
}

func formatYAML(results []FileResult) (string, error) {
	doc := struct {
		Images []FileResult `yaml:"images"`
	}{Images: results}
	bts, err := yaml.Marshal(doc)
	return string(bts), err
}

func formatCSV(results []FileResult) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	rows := [][]string{{"file", "index", "data", "x_min", "y_min", "x_max", "y_max", "confidence"}}
	for _, res := range results {
		if len(res.Detections) == 0 {
			rows = append(rows, []string{res.File, "0", "", "0", "0", "0", "0", "0"})
			continue
		}
		for i, d := range res.Detections {
			rows = append(rows, []string{
				res.File,
				strconv.Itoa(i),
				d.Label,
				strconv.Itoa(d.XMin),
				strconv.Itoa(d.YMin),
				strconv.Itoa(d.XMax),
				strconv.Itoa(d.YMax),
				fmt.Sprintf("%.3f", d.Confidence),
			})
		}
	}
	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

func formatText(results []FileResult) string {
	var output strings.Builder
	for i, res := range results {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", res.File))
		if res.Error != "" {
			output.WriteString(fmt.Sprintf("error: %s\n", res.Error))
			continue
		}
		if len(res.Detections) == 0 {
			output.WriteString("no QR codes found\n")
			continue
		}
		for _, d := range res.Detections {
			output.WriteString(fmt.Sprintf("Data: %s\n", d.Label))
			output.WriteString(fmt.Sprintf("Box: (%d,%d)-(%d,%d)\n", d.XMin, d.YMin, d.XMax, d.YMax))
		}
	}
	return output.String()
}
