package database

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// OpenTest 打开内存数据库。限制单连接，
// 并发测试在连接池处串行化，避免 sqlite 表锁错误
func OpenTest() *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic("failed to get sql db")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		panic("failed to migrate test database")
	}

	return db
}

func CleanTest(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
