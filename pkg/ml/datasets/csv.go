// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LabelCol is the name given to the label column of the raw sonar data.
const LabelCol = "label"

// FeatureNames returns the column names of the features: "freq_0", "freq_1", ...
// They are also the column names used in the scoring database.
func FeatureNames(numFeatures int) []string {
	names := make([]string, numFeatures)
	for ii := range names {
		names[ii] = fmt.Sprintf("freq_%d", ii)
	}
	return names
}

func readCSV(path string, names []string, types map[string]series.Type) (dataframe.DataFrame, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return dataframe.DataFrame{}, failures.Wrapf(failures.KindIO, err, "failed to read %q", path)
	}
	df := dataframe.ReadCSV(bytes.NewReader(contents), dataframe.HasHeader(false),
		dataframe.Names(names...), dataframe.WithTypes(types))
	if df.Err != nil {
		return df, failures.Wrapf(failures.KindDataFormat, df.Err, "failed to parse %q, expected %d columns", path, len(names))
	}
	if df.Ncol() != len(names) {
		return df, failures.Errorf(failures.KindDataFormat, "%q has %d columns, expected %d", path, df.Ncol(), len(names))
	}
	if df.Nrow() == 0 {
		return df, failures.Errorf(failures.KindDataFormat, "%q has no rows", path)
	}
	return df, nil
}

// featuresFromDataFrame converts the float columns to rows of features, failing on missing or non-numeric cells.
func featuresFromDataFrame(path string, df dataframe.DataFrame, names []string) ([][]float64, error) {
	features := make([][]float64, df.Nrow())
	for row := range features {
		features[row] = make([]float64, len(names))
	}
	for colIdx, name := range names {
		col := df.Col(name)
		for row := range features {
			elem := col.Elem(row)
			if elem.IsNA() {
				return nil, failures.Errorf(failures.KindDataFormat, "%q row %d column %d: missing or non-numeric value",
					path, row+1, colIdx+1)
			}
			features[row][colIdx] = elem.Float()
		}
	}
	return features, nil
}

func labelsFromSeries(path string, col series.Series) ([]labels.Label, error) {
	ls, err := labels.ParseAll(col.Records())
	if err != nil {
		return nil, failures.Wrapf(failures.KindDataFormat, err, "labels in %q", path)
	}
	return ls, nil
}

// LoadFeaturesCSV reads a CSV file without header, with numFeatures numeric columns per row.
//
// A wrong number of columns or a non-numeric value is a failures.ErrDataFormat.
func LoadFeaturesCSV(path string, numFeatures int) ([][]float64, error) {
	names := FeatureNames(numFeatures)
	types := make(map[string]series.Type, numFeatures)
	for _, name := range names {
		types[name] = series.Float
	}
	df, err := readCSV(path, names, types)
	if err != nil {
		return nil, err
	}
	return featuresFromDataFrame(path, df, names)
}

// LoadLabelsCSV reads a CSV file with one label symbol ("R" or "M") per row.
func LoadLabelsCSV(path string) ([]labels.Label, error) {
	df, err := readCSV(path, []string{LabelCol}, map[string]series.Type{LabelCol: series.String})
	if err != nil {
		return nil, err
	}
	return labelsFromSeries(path, df.Col(LabelCol))
}

// LoadData reads features and labels from their separate CSV files (as written by SaveSplit).
func LoadData(featuresPath, labelsPath string, numFeatures int) (*Data, error) {
	features, err := LoadFeaturesCSV(featuresPath, numFeatures)
	if err != nil {
		return nil, err
	}
	ls, err := LoadLabelsCSV(labelsPath)
	if err != nil {
		return nil, err
	}
	if len(features) != len(ls) {
		return nil, failures.Errorf(failures.KindDataFormat, "%q has %d rows but %q has %d labels",
			featuresPath, len(features), labelsPath, len(ls))
	}
	klog.V(1).Infof("loaded %d examples from %q and %q: %s", len(ls), featuresPath, labelsPath,
		FormatDistribution(ClassDistribution(ls)))
	return &Data{Features: features, Labels: ls}, nil
}

// LoadSonarCSV reads the raw sonar data: each row has the NumSonarFeatures values followed by the
// label symbol.
func LoadSonarCSV(path string) (*Data, error) {
	names := append(FeatureNames(NumSonarFeatures), LabelCol)
	types := make(map[string]series.Type, len(names))
	for _, name := range names {
		types[name] = series.Float
	}
	types[LabelCol] = series.String
	df, err := readCSV(path, names, types)
	if err != nil {
		return nil, err
	}
	features, err := featuresFromDataFrame(path, df, names[:NumSonarFeatures])
	if err != nil {
		return nil, err
	}
	ls, err := labelsFromSeries(path, df.Col(LabelCol))
	if err != nil {
		return nil, err
	}
	return &Data{Features: features, Labels: ls}, nil
}

// SaveFeaturesCSV writes the features as a CSV without header, with 6 decimal places.
func SaveFeaturesCSV(path string, features [][]float64) error {
	if len(features) == 0 {
		return errors.Errorf("no features to save to %q", path)
	}
	names := FeatureNames(len(features[0]))
	columns := make([]series.Series, len(names))
	for colIdx, name := range names {
		values := make([]float64, len(features))
		for row, rowValues := range features {
			values[row] = rowValues[colIdx]
		}
		columns[colIdx] = series.New(values, series.Float, name)
	}
	return writeDataFrame(path, dataframe.New(columns...))
}

// SaveLabelsCSV writes one label symbol per row.
func SaveLabelsCSV(path string, ls []labels.Label) error {
	symbols := make([]string, len(ls))
	for ii, l := range ls {
		symbols[ii] = l.String()
	}
	return writeDataFrame(path, dataframe.New(series.New(symbols, series.String, LabelCol)))
}

func writeDataFrame(path string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return errors.Wrapf(df.Err, "failed to build data for %q", path)
	}
	err := fsutil.WriteFileAtomic(path, 0o644, func(f *os.File) error {
		return df.WriteCSV(f, dataframe.WriteHeader(false))
	})
	if err != nil {
		return failures.Wrapf(failures.KindIO, err, "failed to write %q", path)
	}
	return nil
}
