package service

import (
	"academix_backend/internal/model"
	"academix_backend/internal/repository"
	"fmt"
	"strings"
)

type CourseService struct {
	Courses *repository.CourseRepository
}

func NewCourseService(courses *repository.CourseRepository) *CourseService {
	return &CourseService{Courses: courses}
}

type CreateCourseRequest struct {
	CourseName  string `json:"courseName" binding:"required"`
	Description string `json:"description"`
}

func (s *CourseService) CreateCourse(teacherID uint, req *CreateCourseRequest) (*model.Course, error) {
	if strings.TrimSpace(req.CourseName) == "" {
		return nil, fmt.Errorf("courseName is required")
	}
	course := &model.Course{
		CourseName:  req.CourseName,
		Description: req.Description,
		TeacherID:   teacherID,
	}
	if err := s.Courses.Create(course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) GetCourse(id uint) (*model.Course, error) {
	return s.Courses.FindByID(id)
}

func (s *CourseService) ListByTeacher(teacherID uint, page, limit int) ([]model.Course, int64, error) {
	return s.Courses.ListByTeacher(teacherID, page, limit)
}
