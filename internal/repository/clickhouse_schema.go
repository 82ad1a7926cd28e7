package repository

import "fmt"

// schema returns the idempotent DDL for the forecast tables in database db.
// Every table is a ReplacingMergeTree so a rewritten key supersedes the old row;
// reads use FINAL so superseded rows never surface.
func schema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.mcp_prices (
			ts    DateTime('UTC'),
			price Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY ts`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.forecast_history (
			window_id    String,
			window_start Date,
			window_end   Date,
			ts           DateTime('UTC'),
			predicted    Float64,
			lower        Float64,
			upper        Float64,
			version      UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY (window_id, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.forecast_hourly_errors (
			window_id        String,
			ts               DateTime('UTC'),
			predicted        Float64,
			actual           Float64,
			absolute_error   Float64,
			percentage_error Float64,
			included         Bool,
			version          UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY (window_id, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.weekly_performance (
			window_id       String,
			window_start    Date,
			window_end      Date,
			mae             Float64,
			rmse            Float64,
			mape            Float64,
			mape_computable Bool,
			sample_count    UInt32,
			excluded_count  UInt32,
			coverage        Float64,
			computed_at     DateTime('UTC'),
			version         UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY window_id`, db),
	}
}
