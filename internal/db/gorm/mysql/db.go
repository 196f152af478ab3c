package mysql

import (
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"infoset_conversion/config"
)

const maxOpenConns = 20

// NewDB opens the journal database named by cfg.DSN.
func NewDB(cfg config.Journal) (*gorm.DB, error) {
	parsed, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse journal dsn")
	}
	parsed.ParseTime = true

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{DSN: parsed.FormatDSN()}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to open db connection")
	}

	if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(parsed.DBName))); err != nil {
		return nil, errors.Wrap(err, "failed to set gorm plugin for opentelemetry")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql db")
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "unable to get db driver")
	}
	return sqlDB.Close()
}
