// Package accounts loads the budget account code map used to default and
// validate account numbers on detail items.
package accounts

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/domain/shared"
	"gopkg.in/yaml.v3"
)

// DefaultCode is used for missing or unknown account numbers
const DefaultCode = "5000"

// TaxAccount is a tax code entry of the map file
type TaxAccount struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

// Account is an account code entry of the map file
type Account struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	TaxCode     string `yaml:"tax_code"`
}

// CodeMap is the parsed account code file
type CodeMap struct {
	TaxAccounts []TaxAccount `yaml:"tax_accounts"`
	Accounts    []Account    `yaml:"accounts"`

	byCode map[string]Account
}

// Default returns the built-in map used when no file is configured
func Default() *CodeMap {
	m := &CodeMap{
		TaxAccounts: []TaxAccount{{Code: "NONE", Description: "Tax exempt"}},
		Accounts: []Account{
			{Code: "5000", Description: "Cost of Goods Sold", TaxCode: "NONE"},
			{Code: "5300", Description: "US Labor", TaxCode: "NONE"},
			{Code: "5330", Description: "Foreign Contractor", TaxCode: "NONE"},
		},
	}
	m.index()
	return m
}

// LoadCodeMap reads a YAML code map. An empty path yields the default map.
func LoadCodeMap(path string) (*CodeMap, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read account code map: %w", err)
	}
	return ParseCodeMap(raw)
}

// ParseCodeMap parses YAML content
func ParseCodeMap(raw []byte) (*CodeMap, error) {
	var m CodeMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse account code map: %w", err)
	}
	taxCodes := make(map[string]bool, len(m.TaxAccounts))
	for _, ta := range m.TaxAccounts {
		taxCodes[ta.Code] = true
	}
	for _, a := range m.Accounts {
		if strings.TrimSpace(a.Code) == "" {
			return nil, fmt.Errorf("account code map: entry %q has no code", a.Description)
		}
		if a.TaxCode != "" && !taxCodes[a.TaxCode] {
			return nil, fmt.Errorf("account code map: %s refers to unknown tax code %s", a.Code, a.TaxCode)
		}
	}
	m.index()
	if _, ok := m.byCode[DefaultCode]; !ok {
		m.Accounts = append(m.Accounts, Account{Code: DefaultCode, Description: "Cost of Goods Sold"})
		m.index()
	}
	return &m, nil
}

func (m *CodeMap) index() {
	m.byCode = make(map[string]Account, len(m.Accounts))
	for _, a := range m.Accounts {
		m.byCode[strings.TrimSpace(a.Code)] = a
	}
}

// Resolve returns code when it is known and DefaultCode otherwise
func (m *CodeMap) Resolve(code string) string {
	code = strings.TrimSpace(code)
	if _, ok := m.byCode[code]; ok {
		return code
	}
	return DefaultCode
}

// Known reports whether code is in the map
func (m *CodeMap) Known(code string) bool {
	_, ok := m.byCode[strings.TrimSpace(code)]
	return ok
}

// Codes returns the known codes in order
func (m *CodeMap) Codes() []string {
	codes := make([]string, 0, len(m.byCode))
	for c := range m.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Seed writes the tax accounts and account codes to the catalogue
func (m *CodeMap) Seed(ctx context.Context, repo procurement.AccountCodeRepository) error {
	taxIDs := make(map[string]*procurement.TaxAccount, len(m.TaxAccounts))
	for _, ta := range m.TaxAccounts {
		account := &procurement.TaxAccount{BaseEntity: shared.NewBaseEntity(), TaxCode: ta.Code, Description: ta.Description}
		if err := repo.UpsertTaxAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to seed tax account %s: %w", ta.Code, err)
		}
		taxIDs[ta.Code] = account
	}
	for _, a := range m.Accounts {
		code := &procurement.AccountCode{BaseEntity: shared.NewBaseEntity(), Code: a.Code, Description: a.Description}
		if ta, ok := taxIDs[a.TaxCode]; ok {
			code.TaxAccountID = &ta.ID
		}
		if err := repo.UpsertAccountCode(ctx, code); err != nil {
			return fmt.Errorf("failed to seed account code %s: %w", a.Code, err)
		}
	}
	return nil
}
