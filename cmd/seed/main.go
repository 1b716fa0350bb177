package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"engageai/internal/config"
	"engageai/internal/model"
	"engageai/internal/service"
)

// Seeds a dev classroom with one teacher, one admin and a handful of
// students, then prints ready-to-use JWTs for each.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB)
	users := db.Collection("users")
	classrooms := db.Collection("classrooms")

	classroomID := primitive.NewObjectID().Hex()

	teacher := &model.User{
		ID:          primitive.NewObjectID().Hex(),
		Name:        "Priya Sharma",
		Email:       "priya.sharma@example.edu",
		Role:        model.RoleTeacher,
		ClassroomID: classroomID,
		IsActive:    true,
	}
	admin := &model.User{
		ID:       primitive.NewObjectID().Hex(),
		Name:     "Site Admin",
		Email:    "admin@example.edu",
		Role:     model.RoleAdmin,
		IsActive: true,
	}

	studentNames := []string{"Aarav Patel", "Diya Singh", "Kabir Mehta", "Ananya Rao", "Ishaan Gupta"}
	students := make([]*model.User, 0, len(studentNames))
	studentIDs := make([]string, 0, len(studentNames))
	for i, name := range studentNames {
		student := &model.User{
			ID:          primitive.NewObjectID().Hex(),
			Name:        name,
			Email:       fmt.Sprintf("student%d@example.edu", i+1),
			Role:        model.RoleStudent,
			RollNumber:  fmt.Sprintf("CS-%03d", i+1),
			ClassroomID: classroomID,
			IsActive:    true,
		}
		students = append(students, student)
		studentIDs = append(studentIDs, student.ID)
	}

	classroom := &model.Classroom{
		ID:        classroomID,
		Name:      "CS-A",
		Section:   "A",
		Subject:   "Computer Science",
		TeacherID: teacher.ID,
		Students:  studentIDs,
		IsActive:  true,
	}

	docs := []interface{}{teacher, admin}
	for _, s := range students {
		docs = append(docs, s)
	}
	if _, err := users.InsertMany(ctx, docs); err != nil {
		log.Fatalf("Failed to insert users: %v", err)
	}
	if _, err := classrooms.InsertOne(ctx, classroom); err != nil {
		log.Fatalf("Failed to insert classroom: %v", err)
	}

	auth := service.NewAuthService(cfg.JWTSecret)
	printToken := func(u *model.User) {
		token, err := auth.GenerateToken(u, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token for %s: %v", u.Name, err)
		}
		fmt.Printf("%-8s %-14s %s\n", u.Role, u.Name, token)
	}

	fmt.Printf("Seeded classroom %s (%s)\n\n", classroom.Name, classroom.ID)
	printToken(teacher)
	printToken(admin)
	for _, s := range students {
		printToken(s)
	}
}
