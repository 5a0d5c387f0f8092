package main

import (
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"authd/models"
)

var db *gorm.DB

func initDB(cfg *Config) {
	if cfg.DSN == "" {
		log.Fatal("DB_DSN is not set. This service requires a Postgres DSN in DB_DSN.")
	}
	var err error
	db, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}

	if cfg.AutoMigrate {
		// Migrate models individually so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Printf("migration warning (users): %v", err)
		}
		if err := db.AutoMigrate(&models.SecurityPolicy{}); err != nil {
			log.Printf("migration warning (security_policies): %v", err)
		}
		if err := db.AutoMigrate(&models.RevokedToken{}); err != nil {
			log.Printf("migration warning (revoked_tokens): %v", err)
		}
		if err := db.AutoMigrate(&models.LockoutState{}); err != nil {
			log.Printf("migration warning (lockout_states): %v", err)
		}
		if err := db.AutoMigrate(&models.Session{}); err != nil {
			log.Printf("migration warning (sessions): %v", err)
		}
	}

	seedDB()
}

// seedDB guarantees the rows the service refuses to run without: the
// system-default security policy and an initial admin account.
func seedDB() {
	var pcount int64
	db.Model(&models.SecurityPolicy{}).Where("tenant_id IS NULL").Count(&pcount)
	if pcount == 0 {
		def := models.SecurityPolicy{
			Active:                      true,
			PasswordMinLength:           8,
			LockoutMaxAttempts:          5,
			LockoutDurationMinutes:      15,
			LockoutType:                 models.LockoutFixed,
			SessionTimeoutMinutes:       30,
			SessionMaxConcurrent:        0,
			SessionAbsoluteTimeoutHours: 12,
		}
		if err := db.Create(&def).Error; err != nil {
			log.Printf("failed to seed default security policy: %v", err)
		} else {
			log.Println("Seeded system-default security policy")
		}
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin := models.User{Username: "admin", HashedPassword: hashedPassword, Role: "admin"}
		if err := db.Create(&admin).Error; err != nil {
			log.Printf("failed to seed admin user: %v", err)
		} else {
			log.Println("Seeded admin user: username=admin, password=admin123")
		}
	}
}
