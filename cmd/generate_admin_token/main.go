package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/nocodeci/yatou-sub001/internal/utils"
)

// Утилита для выпуска долгоживущего административного токена
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	token, err := utils.GenerateAdminJWT()
	if err != nil {
		log.Fatal("Ошибка при создании токена:", err)
	}

	fmt.Println(token)
}
