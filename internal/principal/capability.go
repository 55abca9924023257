package principal

import (
	"errors"
	"slices"
)

// ErrForbidden is returned when a role lacks a capability.
var ErrForbidden = errors.New("operation not permitted for role")

type Capability string

const (
	CapCompaniesManage Capability = "companies:manage"
	CapCompaniesRead   Capability = "companies:read"
	CapCompanyFunds    Capability = "company:funds"
	CapEmployeesRead   Capability = "employees:read"
	CapEmployeesWrite  Capability = "employees:write"
	CapPayrollRead     Capability = "payroll:read"
	CapPayrollWrite    Capability = "payroll:write"
	CapPayrollApprove  Capability = "payroll:approve"
	CapPayrollPay      Capability = "payroll:pay"
	CapPayrollGenerate Capability = "payroll:generate"
	CapNotifications   Capability = "notifications:read"
	CapWebhooksManage  Capability = "webhooks:manage"
	CapAuditRead       Capability = "audit:read"
)

// RoleCapabilities maps each role to what it may do.
var RoleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapCompaniesManage,
		CapCompaniesRead,
		CapCompanyFunds,
		CapEmployeesRead,
		CapEmployeesWrite,
		CapPayrollRead,
		CapPayrollWrite,
		CapPayrollApprove,
		CapPayrollPay,
		CapPayrollGenerate,
		CapNotifications,
		CapWebhooksManage,
		CapAuditRead,
	},
	RoleHR: {
		CapCompaniesRead,
		CapEmployeesRead,
		CapEmployeesWrite,
		CapPayrollRead,
		CapPayrollWrite,
		CapPayrollGenerate,
		CapNotifications,
	},
	RoleDirector: {
		CapCompaniesRead,
		CapCompanyFunds,
		CapEmployeesRead,
		CapPayrollRead,
		CapPayrollApprove,
		CapPayrollPay,
		CapNotifications,
	},
	RoleEmployee: {
		CapNotifications,
	},
}

func (p Principal) HasCapability(c Capability) bool {
	return slices.Contains(RoleCapabilities[p.Role], c)
}
