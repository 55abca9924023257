package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/payrollflow/internal/app"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

type CreateCompanyCmd struct {
	Name           string `help:"Company name" required:""`
	OpeningBalance string `help:"Opening bank balance" default:"0"`
}

func (c *CreateCompanyCmd) Run(ctx context.Context) error {
	balance, err := parseAmount(c.OpeningBalance)
	if err != nil {
		return err
	}
	cfg, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := app.New(db, nil, cfg)
	company, err := svc.Ledger.Create(ctx, principal.System(), c.Name, balance)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%s\n", company.ID, company.Name, company.BankBalance.StringFixed(2))
	return nil
}

// FundCmd credits a company, the operator counterpart of payroll debits.
type FundCmd struct {
	Company string `help:"Company ID" required:""`
	Amount  string `help:"Amount to add" required:""`
}

func (f *FundCmd) Run(ctx context.Context) error {
	companyID, err := uuid.Parse(f.Company)
	if err != nil {
		return fmt.Errorf("invalid company ID: %w", err)
	}
	amount, err := parseAmount(f.Amount)
	if err != nil {
		return err
	}
	cfg, db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := connectRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	svc := app.New(db, rdb, cfg)
	defer svc.Close()
	company, err := svc.Ledger.Credit(ctx, principal.System(), companyID, amount)
	if err != nil {
		return err
	}
	if svc.Cache != nil {
		if err := svc.Cache.DeleteCompany(ctx, companyID); err != nil {
			fmt.Printf("warning: cached funds not cleared: %v\n", err)
		}
	}
	fmt.Printf("%s balance is now %s\n", company.Name, company.BankBalance.StringFixed(2))
	return nil
}
