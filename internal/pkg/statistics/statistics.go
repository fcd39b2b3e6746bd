package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/TobiasKell/NoteMorph/internal/pkg/cache"
	"github.com/TobiasKell/NoteMorph/internal/pkg/database"
)

const (
	CacheKeyNotesTotal  = "statistics:notes:total"
	CacheKeyNotesDaily  = "statistics:notes:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyUsers       = "statistics:users:total"
	CacheKeySubscribers = "statistics:subscribers:total"
	CacheExpiration     = 30 * time.Minute
)

// StatisticsData holds the public usage numbers.
type StatisticsData struct {
	TodayNotes        int
	TotalNotes        int
	TotalUsers        int
	ActiveSubscribers int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached numbers are older than the interval.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cache when it is stale.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache updates all statistics in the cache
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalNotes int64
	if err := db.Model(&models.Note{}).Count(&totalNotes).Error; err != nil {
		log.Printf("Error counting total notes: %v", err)
		return err
	}

	var todayNotes int64
	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	if err := db.Model(&models.Note{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&todayNotes).Error; err != nil {
		log.Printf("Error counting today's notes: %v", err)
		return err
	}

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var activeSubscribers int64
	if err := db.Model(&models.SubscriptionState{}).
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Count(&activeSubscribers).Error; err != nil {
		log.Printf("Error counting active subscribers: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyNotesTotal, strconv.FormatInt(totalNotes, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total notes: %v", err)
		return err
	}

	dailyKey := fmt.Sprintf(CacheKeyNotesDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayNotes, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's notes: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeySubscribers, strconv.FormatInt(activeSubscribers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching active subscribers: %v", err)
		return err
	}

	log.Printf("Statistics updated in cache: Total Notes: %d, Today's Notes: %d, Total Users: %d, Active Subscribers: %d",
		totalNotes, todayNotes, totalUsers, activeSubscribers)

	return nil
}

// GetTotalNotes returns the total number of notes from cache or database
func GetTotalNotes() int {
	val, err := cache.Get(CacheKeyNotesTotal)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.Note{}).Count(&count).Error; err != nil {
			log.Printf("Error counting total notes: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyNotesTotal, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total notes: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetTodayNotes returns the number of notes created today from cache or database
func GetTodayNotes() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyNotesDaily, today)

	val, err := cache.Get(dailyKey)
	if err != nil {
		var count int64
		db := database.GetDB()
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)

		if err := db.Model(&models.Note{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&count).Error; err != nil {
			log.Printf("Error counting today's notes: %v", err)
			return 0
		}

		if err := cache.Set(dailyKey, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching today's notes: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetTotalUsers returns the total number of users from cache or database
func GetTotalUsers() int {
	val, err := cache.Get(CacheKeyUsers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting total users: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total users: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetActiveSubscribers returns the number of users with a live subscription
// from cache or database
func GetActiveSubscribers() int {
	val, err := cache.Get(CacheKeySubscribers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.SubscriptionState{}).
			Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
			Count(&count).Error; err != nil {
			log.Printf("Error counting active subscribers: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeySubscribers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching active subscribers: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetStatisticsData returns all statistics data as StatisticsData structure
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TodayNotes:        GetTodayNotes(),
		TotalNotes:        GetTotalNotes(),
		TotalUsers:        GetTotalUsers(),
		ActiveSubscribers: GetActiveSubscribers(),
	}
}
