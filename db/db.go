package db

import (
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/surveyforge/surveyforge/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB    *gorm.DB
	SqlDB *sql.DB
)

func InitDB() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
			Colorful:      false,
		},
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	SqlDB, err = DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}

	SqlDB.SetMaxIdleConns(10)
	SqlDB.SetMaxOpenConns(100)
	SqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database connected and migrated successfully")
}

// Migrate runs schema migration and seeds the question type registry. Shared
// with the test setup, which runs it against sqlite.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.QuestionType{},
		&models.Survey{},
		&models.Question{},
		&models.SurveyQuestion{},
		&models.Answer{},
		&models.Webhook{},
		&models.SearchDocument{},
	); err != nil {
		return err
	}
	return SeedQuestionTypes(gdb)
}

// SeedQuestionTypes inserts the closed set of question kinds. Existing rows
// are left untouched so config edits in the database survive restarts.
func SeedQuestionTypes(gdb *gorm.DB) error {
	types := []models.QuestionType{
		{Name: "text", DisplayName: "Text", Description: "Single line free text",
			Config: []byte(`{"max_length":255}`)},
		{Name: "textarea", DisplayName: "Long Text", Description: "Multi line free text",
			Config: []byte(`{"max_length":5000}`)},
		{Name: "email", DisplayName: "Email", Description: "Email address input",
			Config: []byte(`{"max_length":255}`)},
		{Name: "url", DisplayName: "URL", Description: "Web address input",
			Config: []byte(`{"max_length":2048}`)},
		{Name: "number", DisplayName: "Number", Description: "Numeric input",
			Config: []byte(`{}`)},
		{Name: "rating", DisplayName: "Rating", Description: "Numeric rating scale",
			Config: []byte(`{"min":1,"max":5}`)},
		{Name: "multiple_choice", DisplayName: "Multiple Choice", Description: "Pick one of several options",
			Config: []byte(`{"min_options":2,"max_options":20}`), AllowsImages: true},
		{Name: "checkbox", DisplayName: "Checkboxes", Description: "Pick any number of options",
			Config: []byte(`{"min_options":2,"max_options":20}`), AllowsImages: true, AllowsMultipleAnswers: true},
		{Name: "dropdown", DisplayName: "Dropdown", Description: "Pick one option from a list",
			Config: []byte(`{"min_options":2,"max_options":50}`)},
		{Name: "file_upload", DisplayName: "File Upload", Description: "Upload a file",
			Config: []byte(`{"allowed_extensions":["pdf","png","jpg","jpeg","doc","docx"],"max_size_mb":10}`), AllowsMultipleAnswers: true},
		{Name: "yes_no", DisplayName: "Yes / No", Description: "Binary choice",
			Config: []byte(`{}`)},
	}

	for _, qt := range types {
		var existing models.QuestionType
		if err := gdb.Where("name = ?", qt.Name).First(&existing).Error; err == nil {
			continue
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := gdb.Create(&qt).Error; err != nil {
			return err
		}
	}
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

func GetSqlDB() *sql.DB {
	return SqlDB
}
