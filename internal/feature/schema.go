// Package feature turns ordered OHLCV bars into a fixed-schema feature table.
package feature

import "fmt"

// Column identifies one column of the feature schema.
type Column int

// The schema order is fixed: raw OHLCV, indicators, then close lags.
const (
	Open Column = iota
	High
	Low
	Close
	Volume
	RSI
	MACD
	MACDSignal
	MACDHist
	ATR
	BollingerUpper
	BollingerMiddle
	BollingerLower
	EMA
	StochK
	OBV
	CloseLag1
	CloseLag2
	CloseLag3
	CloseLag4
	CloseLag5
	CloseLag6
	CloseLag7
	numColumns
)

// NumColumns is the width of every feature row.
const NumColumns = int(numColumns)

// NumLags is the number of close lag columns.
const NumLags = int(CloseLag7-CloseLag1) + 1

var columnNames = [NumColumns]string{
	"open", "high", "low", "close", "volume",
	"rsi", "macd", "macd_signal", "macd_hist", "atr",
	"bb_upper", "bb_middle", "bb_lower", "ema", "stoch_k", "obv",
	"close_lag_1", "close_lag_2", "close_lag_3", "close_lag_4",
	"close_lag_5", "close_lag_6", "close_lag_7",
}

func (c Column) String() string {
	if c < 0 || int(c) >= NumColumns {
		return fmt.Sprintf("Column(%d)", int(c))
	}
	return columnNames[c]
}

// Valid reports whether c is part of the schema.
func (c Column) Valid() bool {
	return c >= 0 && int(c) < NumColumns
}

// ParseColumn maps a schema name back to its Column. Only used at configuration edges.
func ParseColumn(name string) (Column, error) {
	for i, n := range columnNames {
		if n == name {
			return Column(i), nil
		}
	}
	return 0, fmt.Errorf("feature: unknown column %q", name)
}

// AllColumns returns every schema column in order.
func AllColumns() []Column {
	cols := make([]Column, NumColumns)
	for i := range cols {
		cols[i] = Column(i)
	}
	return cols
}

// Names returns the schema names for cols.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.String()
	}
	return out
}

func lagColumn(k int) Column {
	return CloseLag1 + Column(k-1)
}
