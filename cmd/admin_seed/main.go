package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"settlr/internal/config"
	"settlr/internal/models"
	"settlr/internal/repositories"
	"settlr/internal/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminPhone := os.Getenv("ADMIN_PHONE")

	if adminEmail == "" || adminPassword == "" || adminPhone == "" {
		log.Fatal("ADMIN_EMAIL, ADMIN_PASSWORD, and ADMIN_PHONE must be set in environment")
	}

	db, err := repositories.InitDB(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := repositories.Close(db); err != nil {
			log.Printf("Failed to close PostgreSQL connection: %v", err)
		}
	}()

	var admin models.User
	err = db.Where("email = ?", adminEmail).First(&admin).Error
	switch {
	case err == nil:
		log.Println("Admin user already exists")
	case errors.Is(err, gorm.ErrRecordNotFound):
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("Failed to hash password:", err)
		}
		admin = models.User{
			Name:         "Administrator",
			Email:        adminEmail,
			Password:     string(hashedPassword),
			Phone:        adminPhone,
			Role:         "admin",
			TokenVersion: 1,
		}
		if err := db.Create(&admin).Error; err != nil {
			log.Fatal("Failed to create admin user:", err)
		}
		log.Println("Admin account created successfully")
	default:
		log.Fatal("Failed to look up admin user:", err)
	}

	token, err := utils.GenerateAccessToken(&models.UserClaims{
		UserID:       admin.ID,
		Email:        admin.Email,
		Role:         admin.Role,
		Permissions:  models.GetDefaultPermissions(admin.Role),
		TokenVersion: admin.TokenVersion,
	}, cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		log.Fatal("Failed to issue admin token:", err)
	}
	fmt.Println(token)
}
