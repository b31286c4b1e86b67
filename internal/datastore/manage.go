package datastore

import (
	"fmt"

	"gorm.io/gorm"
)

// managedTables lists every schema-managed model in migration order.
var managedTables = []struct {
	name  string
	model any
}{
	{"sensor_readings", &SensorReading{}},
	{"model_records", &ModelRecord{}},
	{"run_records", &RunRecord{}},
	{"run_entity_records", &RunEntityRecord{}},
	{"prediction_records", &PredictionRecord{}},
	{"performance_records", &PerformanceRecord{}},
	{"drift_records", &DriftRecord{}},
}

// performAutoMigration creates or updates the schema for every managed table
// and logs each step. Index definitions live on the model tags and are
// created as part of migration.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	log := serviceLogger()
	log.Info("Performing database auto-migration",
		"db_type", dbType,
		"connection", connectionInfo,
	)

	for _, table := range managedTables {
		if debug {
			log.Debug("Migrating table", "table", table.name)
		}
		if err := db.AutoMigrate(table.model); err != nil {
			return fmt.Errorf("failed to auto-migrate %s table: %w", table.name, err)
		}
	}

	log.Info("Database auto-migration completed", "tables", len(managedTables))
	return nil
}
