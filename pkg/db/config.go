package db

import "time"

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

// TxConfig bounds how long a transaction may wait on locks and run overall.
type TxConfig struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	Timeout          time.Duration
}
