package handlers

import "github.com/example/mri-check/internal/classifier"

// About is the informational panel shown next to the classifier.
type About struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	HowToUse    []string `json:"how_to_use"`
	Disclaimer  string   `json:"disclaimer"`
}

var aboutContent = About{
	Title: "About the Project",
	Description: "This project uses a Convolutional Neural Network (CNN) to classify brain tumors from MRI scans. " +
		"The model is trained on a dataset of brain MRI images and can identify four types of tumors.",
	Labels: classifier.Labels,
	HowToUse: []string{
		"Upload an MRI image using the file uploader.",
		"The model will process the image and provide a prediction along with confidence level.",
		"Optionally, enter your email to receive the result via email.",
	},
	Disclaimer: "This tool is for educational and research purposes only. It is not FDA-approved or clinically certified. " +
		"Always consult a licensed medical professional for diagnosis and treatment.",
}
