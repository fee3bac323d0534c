package storage

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"ima-agent/internal/app/models"
	"ima-agent/pkg/config"
)

var DB *gorm.DB

// InitMysql 连接诊断库并同步 ima_raw_dump 表结构
func InitMysql(conf config.Mysql) error {
	if DB != nil {
		return nil
	}
	db, err := gorm.Open(mysql.Open(fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		conf.Username, conf.Password, conf.Host, conf.DBName)))
	if err != nil {
		log.Errorf("db connect fail:%s", err.Error())
		return fmt.Errorf("connect mysql %s: %w", conf.Host, err)
	}
	sqlDb, err := db.DB()
	if err != nil {
		return err
	}
	sqlDb.SetConnMaxLifetime(time.Hour * 6)
	sqlDb.SetMaxIdleConns(2)
	sqlDb.SetMaxOpenConns(5)
	if strings.Contains(config.GetRunMode(), "dev") {
		db = db.Debug()
	}
	if err := db.AutoMigrate(&models.RawDump{}); err != nil {
		return fmt.Errorf("migrate ima_raw_dump: %w", err)
	}
	DB = db
	log.Info("mysql connection success")
	return nil
}
