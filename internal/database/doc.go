// Package database provides GORM connection pool management with health
// checking, statistics and transaction helpers.
//
// PoolManager wraps a GORM handle and the underlying sql.DB, unifying pool
// tuning (idle and open connection limits, connection lifetime) with a
// periodic background liveness probe. WithTransaction runs a callback in a
// single transaction; WithTransactionRetry adds exponential backoff for
// transient failures such as deadlocks and serialization conflicts.
package database
