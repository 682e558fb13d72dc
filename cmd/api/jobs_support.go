package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/cbemstar/image-converter-app/internal/config"
	"github.com/cbemstar/image-converter-app/internal/jobs"
	"github.com/cbemstar/image-converter-app/internal/pdf"
	"github.com/cbemstar/image-converter-app/internal/storage"
)

const statusPollSeconds = 2

func setupJobs(cfg *config.Config, pdfService *pdf.Service) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	manager, err := jobs.NewManager(cfg, pdfService, store, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// recordReader はジョブ状態の参照元です。*jobs.Manager が満たします。
type recordReader interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

// jobStatusHandler はジョブ状態を返します。未完了のジョブには再確認までの秒数を Retry-After で伝えます。
func jobStatusHandler(reader recordReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if _, err := uuid.Parse(jobID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId の形式が正しくありません。",
			})
			return
		}

		record, err := reader.GetRecord(c.Request.Context(), jobID)
		switch {
		case err != nil:
			log.Printf("job status lookup failed job=%s: %v", jobID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		case record == nil:
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		if !record.Status.Terminal() {
			c.Header("Retry-After", strconv.Itoa(statusPollSeconds))
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, record)
	}
}

func jobDownloadHandler(pdfService *pdf.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		result, file, err := pdfService.OpenResultFile(jobID)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrInvalidJobID):
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    "INVALID_INPUT",
					"message": "jobId の形式が正しくありません。",
				})
			case errors.Is(err, fs.ErrNotExist):
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_RESULT_NOT_FOUND",
					"message": "ジョブの成果物が見つかりませんでした。",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "ジョブの成果物取得に失敗しました。",
				})
			}
			return
		}
		defer file.Close()

		contentType := result.ResponseContentType()
		encodedName := url.PathEscape(result.OutputFilename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", result.JobID)
		c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	}
}
