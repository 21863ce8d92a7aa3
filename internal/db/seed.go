package database

import (
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/azzam1122112-dot/school-display/internal/models"
)

// SeedSupportUser creates the default admin for the recovery endpoints.
// No-op if any staff user already exists.
func SeedSupportUser(db *gorm.DB) {
	var count int64
	db.Model(&models.StaffUser{}).Count(&count)
	if count > 0 {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("display-admin"), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("⚠️ Failed to hash default admin password: %v", err)
		return
	}

	admin := models.StaffUser{
		Username:     "admin",
		PasswordHash: string(hash),
		Role:         "admin",
	}
	if err := db.Create(&admin).Error; err != nil {
		log.Printf("⚠️ Failed to seed admin user: %v", err)
		return
	}
	log.Println("✅ Seeded default admin user (change the password!)")
}

// SeedDemoSchool populates one demo school with a full timetable so a fresh
// install has something to render. Tokens are printed so a display can be
// pointed at them immediately.
func SeedDemoSchool(db *gorm.DB) {
	var count int64
	db.Model(&models.School{}).Count(&count)
	if count > 0 {
		return
	}

	school := models.School{Name: "مدرسة التجربة", Slug: "demo", City: "الرياض", IsActive: true}
	if err := db.Create(&school).Error; err != nil {
		log.Printf("⚠️ Demo seed failed: %v", err)
		return
	}

	settings := models.SchoolSettings{
		SchoolID:           school.ID,
		Theme:              "indigo",
		TimezoneName:       "Asia/Riyadh",
		RefreshIntervalSec: 30,
		StandbyScrollSpeed: 0.8,
		PeriodsScrollSpeed: 0.5,
		FeaturedPanel:      "excellence",
	}
	db.Create(&settings)

	// Sunday..Thursday, seven periods with two breaks
	starts := []string{"07:00", "07:50", "08:40", "09:50", "10:40", "11:50", "12:40"}
	ends := []string{"07:45", "08:35", "09:25", "10:35", "11:25", "12:35", "13:25"}
	subjects := []string{"رياضيات", "لغتي", "علوم", "إنجليزي", "اجتماعيات", "تربية فنية", "قرآن"}

	for weekday := 1; weekday <= 7; weekday++ {
		// DB convention Monday=1..Sunday=7; school days are Sun-Thu
		if weekday == 5 || weekday == 6 {
			continue
		}
		day := models.DaySchedule{SettingsID: settings.ID, Weekday: weekday, IsActive: true}
		db.Create(&day)

		for i := range starts {
			db.Create(&models.Period{
				DayID:     day.ID,
				Index:     i + 1,
				Subject:   subjects[i%len(subjects)],
				ClassName: "1/أ",
				Teacher:   "أ. محمد",
				StartsAt:  starts[i],
				EndsAt:    ends[i],
				IsActive:  true,
			})
		}
		db.Create(&models.Break{DayID: day.ID, Label: "فسحة", StartsAt: "09:25", DurationMin: 25})
		db.Create(&models.Break{DayID: day.ID, Label: "صلاة", StartsAt: "11:25", DurationMin: 25})
	}

	db.Create(&models.Announcement{
		SchoolID: school.ID,
		Title:    "مرحبا",
		Body:     "تم تفعيل شاشة العرض بنجاح",
		IsActive: true,
	})

	for i := 0; i < 3; i++ {
		token := uuid.NewString()
		screen := models.DisplayScreen{
			SchoolID: school.ID,
			Name:     "شاشة تجريبية",
			Token:    token,
			IsActive: true,
		}
		db.Create(&screen)
		log.Printf("🖥️  Demo screen token: %s", token)
	}

	log.Println("✅ Seeded demo school")
}
