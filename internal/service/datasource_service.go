// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"smart-erp-go/internal/model"
	"smart-erp-go/internal/repository"
	"smart-erp-go/pkg/log"
)

// DefaultDataSourceName 是启动时创建的内置数据源名称。
const DefaultDataSourceName = "Default ERP"

// DataSourceService 接口定义了数据源注册表的业务操作。
type DataSourceService interface {
	List(ctx context.Context) ([]model.DataSource, error)
	Get(ctx context.Context, id uint) (*model.DataSource, error)
	Create(ctx context.Context, name, description string, typ model.DataSourceType) (*model.DataSource, error)
	Update(ctx context.Context, id uint, name, description *string) (*model.DataSource, error)
	Delete(ctx context.Context, id uint) error
	SetActive(ctx context.Context, id uint) (*model.DataSource, error)
	Deactivate(ctx context.Context, id uint) error
	GetActive(ctx context.Context) (*model.DataSource, error)
	EnsureDefault(ctx context.Context) error
}

type dataSourceService struct {
	repo      repository.DataSourceRepository
	reclaimer *Reclaimer
}

// NewDataSourceService 创建一个新的 DataSourceService 实例。
func NewDataSourceService(repo repository.DataSourceRepository, r *Reclaimer) DataSourceService {
	return &dataSourceService{repo: repo, reclaimer: r}
}

func (s *dataSourceService) List(ctx context.Context) ([]model.DataSource, error) {
	return s.repo.FindAll(ctx)
}

func (s *dataSourceService) Get(ctx context.Context, id uint) (*model.DataSource, error) {
	return findDataSource(ctx, s.repo, id)
}

func findDataSource(ctx context.Context, repo repository.DataSourceRepository, id uint) (*model.DataSource, error) {
	ds, err := repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDataSourceNotFound
	}
	return ds, err
}

// Create 创建数据源。名称不能为空且全局唯一，类型为空时使用 DEFAULT。
func (s *dataSourceService) Create(ctx context.Context, name, description string, typ model.DataSourceType) (*model.DataSource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDataSource)
	}
	if typ == "" {
		typ = model.DataSourceDefault
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDataSource, typ)
	}
	if err := s.checkNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	ds := &model.DataSource{Name: name, Description: description, Type: typ}
	if err := s.repo.Create(ctx, ds); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	log.Infof("[DataSource] 创建数据源 %d: %s (%s)", ds.ID, ds.Name, ds.Type)
	return ds, nil
}

// Update 修改名称和/或描述，nil 表示不修改。
func (s *dataSourceService) Update(ctx context.Context, id uint, name, description *string) (*model.DataSource, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidDataSource)
		}
		if err := s.checkNameFree(ctx, n, id); err != nil {
			return nil, err
		}
		fields["name"] = n
	}
	if description != nil {
		fields["description"] = *description
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, id, fields); err != nil {
			switch {
			case errors.Is(err, gorm.ErrDuplicatedKey):
				return nil, ErrDuplicateName
			case errors.Is(err, gorm.ErrRecordNotFound):
				return nil, ErrDataSourceNotFound
			}
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *dataSourceService) checkNameFree(ctx context.Context, name string, self uint) error {
	existing, err := s.repo.FindByName(ctx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != self {
		return ErrDuplicateName
	}
	return nil
}

// Delete 删除数据源及其全部文件记录，并回收所有导入表和存储的原始文件。
// 删除当前激活的数据源后，默认数据源重新激活。
func (s *dataSourceService) Delete(ctx context.Context, id uint) error {
	if id == model.DefaultDataSourceID {
		return ErrDefaultDataSource
	}
	ds, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	files, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDataSourceNotFound
		}
		return fmt.Errorf("删除数据源 %d 失败: %w", id, err)
	}
	log.Infof("[DataSource] 已删除数据源 %d (%s)，关联文件 %d 个", id, ds.Name, len(files))

	s.reclaimer.reclaim(ctx, files, ds.BackingTable)

	if ds.IsActive {
		if err := s.activateDefault(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetActive 激活目标数据源并停用其他所有数据源。
func (s *dataSourceService) SetActive(ctx context.Context, id uint) (*model.DataSource, error) {
	if err := s.repo.SetActive(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDataSourceNotFound
		}
		return nil, err
	}
	log.Infof("[DataSource] 数据源 %d 已激活", id)
	return s.Get(ctx, id)
}

// Deactivate 停用数据源，激活状态交还给默认数据源。默认数据源本身不能停用。
func (s *dataSourceService) Deactivate(ctx context.Context, id uint) error {
	if id == model.DefaultDataSourceID {
		return ErrDefaultDataSource
	}
	ds, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ds.IsActive {
		return nil
	}
	return s.activateDefault(ctx)
}

// GetActive 返回激活的数据源；没有显式激活的数据源时返回默认数据源。
func (s *dataSourceService) GetActive(ctx context.Context) (*model.DataSource, error) {
	ds, err := s.repo.FindActive(ctx)
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.Get(ctx, model.DefaultDataSourceID)
}

// EnsureDefault 确保默认数据源存在，并在没有任何激活数据源时激活它。
func (s *dataSourceService) EnsureDefault(ctx context.Context) error {
	_, err := s.repo.FindByID(ctx, model.DefaultDataSourceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ds := &model.DataSource{
			ID:          model.DefaultDataSourceID,
			Name:        DefaultDataSourceName,
			Description: "Built-in ERP dataset",
			Type:        model.DataSourceDefault,
		}
		if err := s.repo.Create(ctx, ds); err != nil {
			return fmt.Errorf("创建默认数据源失败: %w", err)
		}
		log.Infof("[DataSource] 已创建默认数据源 %d", ds.ID)
	} else if err != nil {
		return err
	}

	if _, err := s.repo.FindActive(ctx); errors.Is(err, gorm.ErrRecordNotFound) {
		return s.activateDefault(ctx)
	} else if err != nil {
		return err
	}
	return nil
}

func (s *dataSourceService) activateDefault(ctx context.Context) error {
	if err := s.repo.SetActive(context.WithoutCancel(ctx), model.DefaultDataSourceID); err != nil {
		return fmt.Errorf("重新激活默认数据源失败: %w", err)
	}
	log.Infof("[DataSource] 默认数据源 %d 已激活", model.DefaultDataSourceID)
	return nil
}
