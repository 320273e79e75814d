package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository implementations.
type Repositories struct {
	Organization OrganizationRepository
	Credit       CreditRepository
	Automation   AutomationRepository
	Lead         LeadRepository
	Student      StudentRepository
	CheckIn      CheckInRepository
	User         UserRepository
	Setting      SettingRepository
}

// NewRepositories creates all repositories from a single DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Organization: NewOrganizationRepository(db),
		Credit:       NewCreditRepository(db),
		Automation:   NewAutomationRepository(db),
		Lead:         NewLeadRepository(db),
		Student:      NewStudentRepository(db),
		CheckIn:      NewCheckInRepository(db),
		User:         NewUserRepository(db),
		Setting:      NewSettingRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetOrganizationRepository returns the organization repository instance
func (f *Factory) GetOrganizationRepository() OrganizationRepository {
	return f.GetRepositories().Organization
}

// GetCreditRepository returns the credit repository instance
func (f *Factory) GetCreditRepository() CreditRepository {
	return f.GetRepositories().Credit
}

// GetAutomationRepository returns the automation repository instance
func (f *Factory) GetAutomationRepository() AutomationRepository {
	return f.GetRepositories().Automation
}

// GetLeadRepository returns the lead repository instance
func (f *Factory) GetLeadRepository() LeadRepository {
	return f.GetRepositories().Lead
}

// GetStudentRepository returns the student repository instance
func (f *Factory) GetStudentRepository() StudentRepository {
	return f.GetRepositories().Student
}

// GetCheckInRepository returns the check-in repository instance
func (f *Factory) GetCheckInRepository() CheckInRepository {
	return f.GetRepositories().CheckIn
}

// GetUserRepository returns the staff user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetSettingRepository returns the setting repository instance
func (f *Factory) GetSettingRepository() SettingRepository {
	return f.GetRepositories().Setting
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
