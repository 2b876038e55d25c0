package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	profile TEXT NOT NULL,
	seed INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS fills (
	fill_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	leg_index INTEGER NOT NULL,
	profile TEXT NOT NULL,
	seed INTEGER NOT NULL,
	decision_time DATETIME NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	requested INTEGER NOT NULL,
	filled INTEGER NOT NULL,
	multiplier REAL NOT NULL,
	limit_price REAL NOT NULL,
	price REAL NOT NULL,
	decision_bid REAL NOT NULL,
	decision_ask REAL NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL,
	mid_fill INTEGER NOT NULL,
	within_nbbo INTEGER NOT NULL,
	slippage REAL NOT NULL,
	latency_ms REAL NOT NULL,
	pnl REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, decision_time);

CREATE TABLE IF NOT EXISTS decisions (
	decision_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	decision_time DATETIME NOT NULL,
	admitted INTEGER NOT NULL,
	reason TEXT NOT NULL,
	detail TEXT NOT NULL,
	worst_case_loss REAL NOT NULL,
	limit_in_force REAL NOT NULL,
	realized_today REAL NOT NULL,
	notch_index INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id, reason);

CREATE TABLE IF NOT EXISTS notch_adjustments (
	adjustment_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	day DATETIME NOT NULL,
	daily_pnl REAL NOT NULL,
	limit_in_force REAL NOT NULL,
	new_limit REAL NOT NULL,
	old_index INTEGER NOT NULL,
	new_index INTEGER NOT NULL,
	requested INTEGER NOT NULL,
	delta INTEGER NOT NULL,
	reason TEXT NOT NULL,
	tier REAL NOT NULL,
	profit_streak INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notch_run_day ON notch_adjustments(run_id, day);

CREATE TABLE IF NOT EXISTS ledger_state (
	name TEXT PRIMARY KEY,
	limits TEXT NOT NULL,
	notch_index INTEGER NOT NULL,
	realized_today REAL NOT NULL,
	profit_streak INTEGER NOT NULL,
	history TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`
