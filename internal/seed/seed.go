package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	"gorm.io/gorm"
)

type ContainerSpec struct {
	Name        string
	Description string
	Returnable  bool
}

type ClientSpec struct {
	Name    string
	Email   string
	Address string
}

// Catalog is the master data a fresh installation starts with.
type Catalog struct {
	Containers []ContainerSpec
	Clients    []ClientSpec
}

type Result struct {
	ContainersCreated int
	ClientsCreated    int
}

func DefaultCatalog() Catalog {
	return Catalog{
		Containers: []ContainerSpec{
			{Name: "Galon 19L", Description: "refillable water jug", Returnable: true},
			{Name: "Crate 24x600ml", Description: "bottle crate", Returnable: true},
			{Name: "Cup 240ml", Description: "single use cup carton"},
		},
	}
}

// EnsureMasterData creates every container type and client of the catalog that
// does not exist yet, matched by name. Existing rows are left untouched.
func EnsureMasterData(ctx context.Context, db *gorm.DB, node *snowflake.Node, catalog Catalog) (Result, error) {
	if db == nil {
		return Result{}, errors.New("seed database handle is required")
	}
	if node == nil {
		return Result{}, errors.New("seed id generator is required")
	}

	var result Result
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = Result{}
		for _, spec := range catalog.Containers {
			created, err := ensureContainerTx(ctx, tx, node, spec)
			if err != nil {
				return err
			}
			if created {
				result.ContainersCreated++
			}
		}
		for _, spec := range catalog.Clients {
			created, err := ensureClientTx(ctx, tx, node, spec)
			if err != nil {
				return err
			}
			if created {
				result.ClientsCreated++
			}
		}
		return nil
	})
	return result, err
}

func ensureContainerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, spec ContainerSpec) (bool, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return false, errors.New("container name is required")
	}

	var container masterdatadomain.ContainerType
	err := tx.WithContext(ctx).Where("name = ?", name).First(&container).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	container = masterdatadomain.ContainerType{
		ID:           node.Generate(),
		Name:         name,
		Description:  optionalString(spec.Description),
		IsReturnable: spec.Returnable,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&container).Error; err != nil {
		return false, err
	}
	return true, nil
}

func ensureClientTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, spec ClientSpec) (bool, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return false, errors.New("client name is required")
	}

	var client masterdatadomain.Client
	err := tx.WithContext(ctx).Where("name = ?", name).First(&client).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	client = masterdatadomain.Client{
		ID:              node.Generate(),
		Name:            name,
		Email:           optionalString(spec.Email),
		Address:         optionalString(spec.Address),
		BillingType:     masterdatadomain.BillingTypeMonthly,
		BillingInterval: 1,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(&client).Error; err != nil {
		return false, err
	}
	return true, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
