// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/wfunc/meiro/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(DSN(host, port, user, password, dbname)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormRoom{}, &models.GormGameRecord{}); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveRoom upserts the checkpoint keyed by room_id.
func (p *GormPostgreSQL) SaveRoom(ctx context.Context, st *models.RoomState) error {
	data, err := EncodeRoom(st)
	if err != nil {
		return err
	}
	row := models.GormRoom{
		RoomID: st.ID,
		Phase:  string(st.Phase),
		State:  data,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phase", "state", "updated_at"}),
	}).Create(&row).Error
}

func (p *GormPostgreSQL) LoadRooms(ctx context.Context) ([]*models.RoomState, error) {
	var rows []models.GormRoom
	if err := p.db.WithContext(ctx).Order("room_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	rooms := make([]*models.RoomState, 0, len(rows))
	for _, row := range rows {
		st, err := DecodeRoom(row.State)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, st)
	}
	return rooms, nil
}

func (p *GormPostgreSQL) DeleteRoom(ctx context.Context, roomID string) error {
	res := p.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.GormRoom{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveGameRecord 保存游戏记录
func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	row := models.FromRecord(record)
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *GormPostgreSQL) ListGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	var rows []models.GormGameRecord
	err := p.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.GameRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToRecord())
	}
	return out, nil
}

// GameRecordByID loads one record; ErrRecordNotFound when missing.
func (p *GormPostgreSQL) GameRecordByID(ctx context.Context, id string) (models.GameRecord, error) {
	var row models.GormGameRecord
	if err := p.db.WithContext(ctx).Where("record_id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GameRecord{}, ErrRecordNotFound
		}
		return models.GameRecord{}, err
	}
	return row.ToRecord(), nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*GormPostgreSQL)(nil)
