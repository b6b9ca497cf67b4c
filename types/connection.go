package types

import "strings"

// ADXConnection locates the Kusto table holding an ADT instance's
// historized telemetry.
type ADXConnection struct {
	ClusterURL   string `json:"kustoClusterUrl"`
	DatabaseName string `json:"kustoDatabaseName"`
	TableName    string `json:"kustoTableName"`
}

// Complete reports whether all three coordinates were resolved.
func (c ADXConnection) Complete() bool {
	return c.ClusterURL != "" && c.DatabaseName != "" && c.TableName != ""
}

// HistoryTableName derives the data-history table name ADT provisions for
// a database in a given Azure location.
func HistoryTableName(databaseName, location string) string {
	return "adt_dh_" + strings.ReplaceAll(databaseName, "-", "_") + "_" + location
}
